package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/config"
	"github.com/ppiankov/livecode/internal/history"
	"github.com/ppiankov/livecode/internal/model"
)

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of recent executions to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent executions",
	Long:  "Lists executions recorded in the history database (history_db in the config,\ndefault ~/.livecode/history.db), newest first.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded executions",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

func openHistory() (*history.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	path := cfg.HistoryDB
	if path == "" {
		path = history.DefaultPath()
	}
	return history.Open(path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if historyJSON {
		return writeJSON(w, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no executions recorded")
		return nil
	}
	renderHistory(w, recs)
	return nil
}

func renderHistory(w io.Writer, recs []model.ExecutionRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tID\tLEVEL\tLANE\tRESULT\tDURATION")
	for _, r := range recs {
		result := "ok"
		if !r.Success {
			result = string(r.FailureReason)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ExecutionID, r.Level, r.Lane, result, r.DurationMs)
	}
	tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no execution %q in history", args[0])
	}
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if historyJSON {
		return writeJSON(w, rec)
	}
	fmt.Fprintf(w, "execution: %s\n", rec.ExecutionID)
	fmt.Fprintf(w, "started:   %s\n", rec.StartedAt.Local().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "level:     %s\n", rec.Level)
	fmt.Fprintf(w, "lane:      %s\n", rec.Lane)
	fmt.Fprintf(w, "mode:      %s\n", rec.Mode)
	fmt.Fprintf(w, "duration:  %dms\n", rec.DurationMs)
	if rec.Key != "" {
		fmt.Fprintf(w, "key:       %s\n", rec.Key)
	}
	if rec.Success {
		fmt.Fprintln(w, "result:    ok")
		return nil
	}
	fmt.Fprintf(w, "result:    %s\n", rec.FailureReason)
	if rec.Violations > 0 {
		fmt.Fprintf(w, "violations: %d\n", rec.Violations)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(w, "error:     %s\n", rec.ErrorMessage)
	}
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if historyJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "executions: %d\n", stats.Total)
	fmt.Fprintf(w, "succeeded:  %d\n", stats.Succeeded)
	fmt.Fprintf(w, "avg time:   %.1fms\n", stats.AvgDurationMs)
	if len(stats.ByReason) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(stats.ByReason))
	for r := range stats.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	fmt.Fprintln(w, "failures:")
	for _, r := range reasons {
		fmt.Fprintf(w, "  %-22s %d\n", r, stats.ByReason[model.FailureReason(r)])
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
