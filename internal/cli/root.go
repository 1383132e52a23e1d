package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/service"
)

var (
	configPath string
	levelFlag  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "livecode",
	Short: "Compile and run Go snippets inside a host process",
	Long: "Wraps Go snippets into an entry point, resolves their imports, checks their API usage\n" +
		"against a security level, caches the verified module and runs it in an embedded interpreter.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.livecode/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "level", "", "Override security level (disabled|restricted|full_access)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openService(noJournal bool) (*service.Service, error) {
	return service.New(service.Options{
		ConfigPath: configPath,
		Logger:     newLogger(),
		Level:      levelFlag,
		NoJournal:  noJournal,
	})
}
