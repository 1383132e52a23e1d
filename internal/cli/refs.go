package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
)

var (
	refsExtra     []string
	refsAllLoaded bool
	refsJSON      bool
)

func init() {
	rootCmd.AddCommand(refsCmd)
	refsCmd.Flags().StringArrayVar(&refsExtra, "ref", nil, "Additional module path to include (repeatable)")
	refsCmd.Flags().BoolVar(&refsAllLoaded, "all-loaded", false, "Include every loaded module the level permits")
	refsCmd.Flags().BoolVar(&refsJSON, "json", false, "Print as JSON")
}

var refsCmd = &cobra.Command{
	Use:   "refs [prefix]",
	Short: "List the packages snippets may import",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRefs,
}

type refRow struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Version string `json:"version,omitempty"`
}

func runRefs(cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	svc, err := openService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	req := executor.Request{ExtraReferences: refsExtra, Mode: model.ModeProject}
	if refsAllLoaded {
		req.Mode = model.ModeAllLoaded
	}
	set, missing, err := svc.References(context.Background(), req)
	if err != nil {
		return err
	}

	var rows []refRow
	for _, p := range set.Paths() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		u, _ := set.Unit(p)
		rows = append(rows, refRow{Path: p, Name: u.Name, Kind: string(u.Kind), Version: u.Version})
	}

	w := cmd.OutOrStdout()
	if refsJSON {
		out, err := json.MarshalIndent(map[string]any{
			"level":   set.Level().String(),
			"modules": rows,
			"missing": missing,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tKIND\tVERSION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Path, r.Name, r.Kind, r.Version)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d packages at level %s\n", len(rows), set.Level())
	for _, m := range missing {
		fmt.Fprintf(w, "warning: %s matches no loaded module\n", m)
	}
	return nil
}
