package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/server"
)

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gRPC listen address (default from config grpc.listen)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC bridge server",
	Long: "Runs livecode as a gRPC server (livecode.v1.Bridge) so out-of-process callers can\n" +
		"execute and compile snippets. Supports hot-reload of config and denylist files.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := openService(false)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer svc.Close()

	addr := serveListen
	if addr == "" {
		cfg, _ := svc.Config()
		addr = cfg.GRPC.Listen
	}

	srv := server.New(svc, newLogger())

	ctx, stop := shutdownContext(cmd, "Shutting down bridge server...")
	defer stop()

	startReloader(ctx, svc)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "livecode bridge listening on %s (level %s)\n\n", addr, svc.Executor().Level())
	return srv.Serve(addr)
}
