// Package client calls a remote livecode.v1.Bridge server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	livecodev1 "github.com/ppiankov/livecode/api/livecode/v1"
	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
)

// callTimeout bounds the calls that never run snippets.
const callTimeout = 5 * time.Second

// Client connects to a livecode gRPC bridge.
type Client struct {
	conn *grpc.ClientConn
}

// New creates a gRPC client for the given address. The connection is
// established lazily on the first call.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Execute runs req on the remote host. Execution has no deadline of its
// own; bound it with ctx. Params travel as JSON, so numbers arrive as float64.
func (c *Client) Execute(ctx context.Context, req executor.Request) (model.ExecutionResult, error) {
	var res model.ExecutionResult
	err := c.invoke(ctx, livecodev1.MethodExecute, req, &res)
	return res, err
}

// CompileResult is a remote compilation result. The compiled module itself
// stays on the server.
type CompileResult struct {
	model.CompilationResult
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Imports      []string `json:"imports,omitempty"`
}

// Compile compiles req on the remote host without running it.
func (c *Client) Compile(ctx context.Context, req model.CompilationRequest) (CompileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var res CompileResult
	err := c.invoke(ctx, livecodev1.MethodCompile, req, &res)
	return res, err
}

// ClearCache drops the remote module cache and returns how many modules
// were dropped.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var res struct {
		Cleared int `json:"cleared"`
	}
	err := c.invoke(ctx, livecodev1.MethodClearCache, struct{}{}, &res)
	return res.Cleared, err
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := livecodev1.Encode(req)
	if err != nil {
		return err
	}
	out, err := livecodev1.Invoke(ctx, c.conn, method, in)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return livecodev1.Decode(out, resp)
}
