package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/config"
	"github.com/ppiankov/livecode/internal/denylist"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
)

var policyJSON bool

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.Flags().BoolVar(&policyJSON, "json", false, "Output as JSON")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show security levels and the active denylist",
	Args:  cobra.NoArgs,
	RunE:  runPolicy,
}

type policyReport struct {
	Active   string                `json:"active"`
	Levels   []policy.LevelSummary `json:"levels"`
	Denylist denylist.Patterns     `json:"denylist"`
}

func runPolicy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	active := cfg.SecurityLevel
	if levelFlag != "" {
		active = levelFlag
	}
	level, err := model.ParseSecurityLevel(active)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidLevel, err)
	}
	dl, err := denylist.Load(cfg.Denylist)
	if err != nil {
		return fmt.Errorf("failed to load denylist: %w", err)
	}
	pol := policy.New(dl)

	report := policyReport{Active: level.String(), Denylist: dl.Patterns()}
	for _, l := range []model.SecurityLevel{model.Disabled, model.Restricted, model.FullAccess} {
		report.Levels = append(report.Levels, pol.Describe(l))
	}

	w := cmd.OutOrStdout()
	if policyJSON {
		return writeJSON(w, report)
	}

	for _, s := range report.Levels {
		marker := " "
		if s.Level == report.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-12s %s\n", marker, s.Level, s.Description)
		if s.Compiles {
			fmt.Fprintf(w, "    references: %s\n", strings.Join(s.Kinds, ", "))
			fmt.Fprintf(w, "    api checks: %v\n", s.InspectsAPIs)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "denylist apis (%d):\n", len(report.Denylist.APIs))
	for _, p := range report.Denylist.APIs {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintf(w, "denylist namespaces (%d):\n", len(report.Denylist.Namespaces))
	for _, p := range report.Denylist.Namespaces {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}
