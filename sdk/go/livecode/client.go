package livecode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/livecode/internal/audit"
	"github.com/ppiankov/livecode/internal/denylist"
	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
)

// Client compiles and runs snippets at a fixed security level.
// Safe for concurrent use.
type Client struct {
	cfg   clientConfig
	exec  *executor.Executor
	audit *audit.Log
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{level: model.Restricted}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.level.Valid() {
		return nil, fmt.Errorf("livecode: invalid security level %d", int(cfg.level))
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	dl, err := denylist.Load(cfg.denylistPath)
	if err != nil {
		return nil, fmt.Errorf("livecode: failed to load denylist: %w", err)
	}

	reg := inventory.Default()
	for _, m := range cfg.modules {
		if err := reg.Register(inventory.Module{
			Path:     m.path,
			Version:  m.version,
			Location: "sdk",
			Kind:     model.KindProject,
			Symbols:  m.symbols,
		}); err != nil {
			return nil, fmt.Errorf("livecode: failed to register module %q: %w", m.path, err)
		}
	}

	c := &Client{cfg: cfg}
	journals := cfg.journals
	if cfg.auditPath != "" {
		c.audit, err = audit.Open(cfg.auditPath)
		if err != nil {
			return nil, fmt.Errorf("livecode: failed to open audit log: %w", err)
		}
		journals = append(journals, audit.NewJournal(c.audit, ""))
	}

	c.exec = executor.New(executor.Options{
		Level:     cfg.level,
		Policy:    policy.New(dl),
		Inventory: reg,
		Logger:    cfg.logger,
		Journals:  journals,
	})
	return c, nil
}

// Level returns the client's security level.
func (c *Client) Level() Level {
	return c.exec.Level()
}

// Compile compiles req without running it.
func (c *Client) Compile(ctx context.Context, req CompilationRequest) CompilationResult {
	return c.exec.Compile(ctx, req)
}

// ExecuteCode compiles and runs req and reports every outcome in the result.
func (c *Client) ExecuteCode(ctx context.Context, req Request) ExecutionResult {
	return c.exec.ExecuteCode(ctx, req)
}

// Execute runs source and returns its value. A failed execution returns an
// *ExecutionError.
func (c *Client) Execute(ctx context.Context, source string, opts ...RunOption) (any, error) {
	req := Request{Source: source}
	for _, o := range opts {
		o(&req)
	}
	res := c.exec.ExecuteCode(ctx, req)
	if !res.Success {
		return nil, &ExecutionError{Result: res}
	}
	return res.Result, nil
}

// ClearCache drops every compiled module.
func (c *Client) ClearCache() {
	c.exec.ClearCache()
}

// Wait blocks until every background execution has finished.
func (c *Client) Wait() {
	c.exec.Wait()
}

// Close waits for background executions and closes the audit log.
func (c *Client) Close() error {
	c.exec.Wait()
	if c.audit != nil {
		return c.audit.Close()
	}
	return nil
}
