package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	lcmcp "github.com/ppiankov/livecode/internal/mcp"
	"github.com/ppiankov/livecode/internal/service"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs livecode as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: livecode_execute, livecode_compile, livecode_clear_cache, livecode_references.\n" +
		"Config and denylist changes are picked up without a restart.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, err := openService(false)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer svc.Close()

	ctx, stop := shutdownContext(cmd, "Shutting down MCP server...")
	defer stop()

	startReloader(ctx, svc)

	fmt.Fprintf(cmd.ErrOrStderr(), "livecode MCP server running on stdio (level %s)\n\n", svc.Executor().Level())
	return lcmcp.New(svc, version).Run(ctx)
}

// shutdownContext returns a context cancelled on SIGINT or SIGTERM, printing
// msg to stderr when the signal arrives.
func shutdownContext(cmd *cobra.Command, msg string) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\n"+msg)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// startReloader watches the config and denylist in the background.
func startReloader(ctx context.Context, svc *service.Service) {
	reloader, err := service.NewReloader(svc, svc.WatchPaths())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		return
	}
	for _, p := range reloader.Paths() {
		fmt.Fprintf(os.Stderr, "Watching: %s (hot-reload enabled)\n", p)
	}
	go reloader.Run(ctx)
}
