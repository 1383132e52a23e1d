package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/livecode/internal/config"
	"github.com/ppiankov/livecode/internal/denylist"
	"github.com/ppiankov/livecode/internal/model"
)

var (
	initMode  string
	initLevel string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.livecode) or system (/etc/livecode)")
	initCmd.Flags().StringVar(&initLevel, "security-level", "", "Security level written to config.yaml (default restricted)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap livecode configuration",
	Long: `Creates the config directory with a default config.yaml and denylist.yaml.

User mode (default):  writes to ~/.livecode/
System mode:          writes to /etc/livecode/ (requires root)`,
	RunE: runInit,
}

// initFile is one file written by init, rendered for the target directory.
type initFile struct {
	name   string
	render func(dir string) (string, error)
}

var initFiles = []initFile{
	{"denylist.yaml", func(string) (string, error) { return defaultDenylistYAML() }},
	{"config.yaml", defaultConfigYAML},
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := initConfigDir()
	if err != nil {
		return err
	}
	var out io.Writer = os.Stdout
	if cmd != nil {
		out = cmd.OutOrStdout()
	}

	// Render everything up front so a bad flag leaves the directory untouched.
	contents := make([]string, len(initFiles))
	for i, f := range initFiles {
		if contents[i], err = f.render(dir); err != nil {
			return fmt.Errorf("render %s: %w", f.name, err)
		}
	}

	var created, kept []string
	for i, f := range initFiles {
		path := filepath.Join(dir, f.name)
		wrote, err := writeIfMissing(path, contents[i])
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, path)
		} else {
			kept = append(kept, path)
		}
	}

	fmt.Fprintf(out, "livecode init complete (%s).\n\n", dir)
	for _, p := range created {
		fmt.Fprintf(out, "  created  %s\n", p)
	}
	for _, p := range kept {
		fmt.Fprintf(out, "  kept     %s\n", p)
	}
	if len(kept) > 0 {
		fmt.Fprintln(out, "\nExisting files were left alone; pass --force to overwrite them.")
	}

	run := "livecode run -e 'return runtime.Version()'"
	if initMode == "system" {
		run = fmt.Sprintf("livecode --config %s run -e 'return runtime.Version()'", filepath.Join(dir, "config.yaml"))
	}
	fmt.Fprintf(out, "\nNext:\n  livecode doctor\n  %s\n", run)
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/livecode", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".livecode"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultConfigYAML renders the built-in config with journal and denylist
// paths under dir.
func defaultConfigYAML(dir string) (string, error) {
	cfg := config.DefaultConfig()
	if initLevel != "" {
		level, err := model.ParseSecurityLevel(initLevel)
		if err != nil {
			return "", fmt.Errorf("%w: %v", config.ErrInvalidLevel, err)
		}
		cfg.SecurityLevel = level.String()
	}
	cfg.Denylist = filepath.Join(dir, "denylist.yaml")
	cfg.AuditLog = filepath.Join(dir, "audit.jsonl")
	cfg.HistoryDB = filepath.Join(dir, "history.db")

	data, err := config.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("generate default config: %w", err)
	}
	header := "# livecode configuration.\n" +
		"# security_level: disabled | restricted | full_access\n" +
		"# Changes are picked up by `livecode mcp` and `livecode serve` without a restart.\n\n"
	return header + string(data), nil
}

// defaultDenylistYAML generates a commented default denylist.yaml.
func defaultDenylistYAML() (string, error) {
	data, err := yaml.Marshal(denylist.DefaultPatterns)
	if err != nil {
		return "", err
	}
	header := "# livecode denylist, enforced at the restricted level.\n" +
		"# apis: \"<import path>.<Func>\" or \"<import path>.<Type>.<Method>\"; * is a wildcard.\n" +
		"# namespaces: import path prefixes a snippet may not import.\n" +
		"#\n" +
		"# Edit this file to customize what livecode blocks.\n" +
		"# See: livecode policy\n\n"
	return header + string(data), nil
}
