package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/audit"
	"github.com/ppiankov/livecode/internal/config"
	"github.com/ppiankov/livecode/internal/denylist"
	"github.com/ppiankov/livecode/internal/history"
	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
	"github.com/ppiankov/livecode/internal/refs"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, journals and the module inventory",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := doctorChecks(cmd.Context())

	hasFailures := false
	for _, c := range checks {
		mark := "✓" // ✓
		if !c.ok {
			mark = "✗" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	if hasFailures {
		fmt.Fprintln(cmd.OutOrStdout(), "Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All checks passed.")
	return nil
}

func doctorChecks(ctx context.Context) []checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	checks = append(checks, checkResult{
		label:  "livecode binary",
		ok:     execPath != "",
		detail: fmt.Sprintf("%s (v%s, %s)", execPath, version, runtime.Version()),
	})

	// 2. config.yaml.
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		checks = append(checks, checkResult{label: "config.yaml", detail: err.Error(), fix: "livecode init --force"})
		return checks
	}
	if _, statErr := os.Stat(cfgPath); statErr != nil {
		checks = append(checks, checkResult{label: "config.yaml", detail: "not found, using defaults", fix: "livecode init"})
	} else {
		checks = append(checks, checkResult{label: "config.yaml", ok: true, detail: fmt.Sprintf("%s (%s)", cfgPath, hash[:19])})
	}

	// 3. Security level. Load already rejected unknown labels.
	level, _ := cfg.Level()
	checks = append(checks, checkResult{label: "security level", ok: true, detail: level.String()})

	// 4. denylist.yaml.
	dlPath := cfg.Denylist
	if dlPath == "" {
		dlPath = denylist.DefaultPath()
	}
	dl, err := denylist.Load(cfg.Denylist)
	if err != nil {
		checks = append(checks, checkResult{label: "denylist.yaml", detail: err.Error(), fix: "livecode init --force"})
		dl = denylist.NewDefault()
	} else {
		p := dl.Patterns()
		detail := fmt.Sprintf("%d apis, %d namespaces", len(p.APIs), len(p.Namespaces))
		if _, statErr := os.Stat(dlPath); statErr != nil {
			detail += " (built-in)"
		}
		checks = append(checks, checkResult{label: "denylist.yaml", ok: true, detail: detail})
	}

	// 5. Audit chain.
	auditPath := cfg.AuditLog
	if auditPath == "" {
		auditPath = audit.DefaultPath()
	}
	if _, err := os.Stat(auditPath); err != nil {
		checks = append(checks, checkResult{label: "audit log", ok: true, detail: "empty"})
	} else if vr := audit.Verify(auditPath); vr.Valid {
		checks = append(checks, checkResult{label: "audit log", ok: true, detail: fmt.Sprintf("%d entries, chain intact", vr.Lines)})
	} else {
		checks = append(checks, checkResult{
			label:  "audit log",
			detail: fmt.Sprintf("broken at line %d: %s", vr.ErrorLine, vr.Error),
			fix:    "livecode audit verify " + auditPath,
		})
	}

	// 6. History database.
	historyPath := cfg.HistoryDB
	if historyPath == "" {
		historyPath = history.DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		checks = append(checks, checkResult{label: "history", detail: err.Error()})
	} else if store, err := history.Open(historyPath); err != nil {
		checks = append(checks, checkResult{label: "history", detail: err.Error()})
	} else {
		stats, err := store.Stats(ctx)
		store.Close()
		if err != nil {
			checks = append(checks, checkResult{label: "history", detail: err.Error()})
		} else {
			checks = append(checks, checkResult{label: "history", ok: true, detail: fmt.Sprintf("%d executions", stats.Total)})
		}
	}

	// 7. Reference set for the configured level.
	if level != model.Disabled {
		pol := policy.New(dl)
		base, err := refs.NewResolver(inventory.Default(), pol, newLogger()).Build(ctx, level)
		if err != nil {
			checks = append(checks, checkResult{label: "references", detail: err.Error()})
			return checks
		}
		set, missing := base.With(cfg.ExtraReferences, model.ModeProject)
		if len(missing) > 0 {
			checks = append(checks, checkResult{
				label:  "references",
				detail: fmt.Sprintf("%d modules, unknown extra references %v", set.Len(), missing),
				fix:    "fix extra_references in " + cfgPath,
			})
		} else {
			checks = append(checks, checkResult{label: "references", ok: true, detail: fmt.Sprintf("%d modules", set.Len())})
		}
	}

	return checks
}
