// Package mcp serves the executor as MCP tools over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/livecode/internal/service"
)

// Server wraps the MCP SDK server around a livecode service.
type Server struct {
	mcpServer *mcpsdk.Server
	svc       *service.Service
}

// New creates an MCP server exposing svc. The caller owns svc.
func New(svc *service.Service, version string) *Server {
	s := &Server{svc: svc}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "livecode",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all livecode tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "livecode_execute",
		Description: "Compile and run a Go snippet inside the host. Missing imports are added automatically; the snippet body may use ctx and params and return a value. Failures return the reason, diagnostics and any security violations.",
	}, s.handleExecute)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "livecode_compile",
		Description: "Compile and security-check a Go snippet without running it. Returns the updated code with resolved imports.",
	}, s.handleCompile)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "livecode_clear_cache",
		Description: "Drop every compiled snippet from the cache.",
	}, s.handleClearCache)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "livecode_references",
		Description: "List the packages a snippet may import at the current security level.",
	}, s.handleReferences)
}
