package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
)

// errFailed makes the command exit non-zero after the result was printed.
var errFailed = errors.New("execution failed")

type snippetFlags struct {
	expr      string
	namespace string
	typeName  string
	refs      []string
	allLoaded bool
	jsonOut   bool
	noJournal bool
}

func (f *snippetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.expr, "expr", "e", "", "Snippet source (instead of a file)")
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Package the snippet is wrapped in")
	cmd.Flags().StringVar(&f.typeName, "type-name", "", "Name of the generated entry function")
	cmd.Flags().StringArrayVar(&f.refs, "ref", nil, "Additional module path to reference (repeatable)")
	cmd.Flags().BoolVar(&f.allLoaded, "all-loaded", false, "Reference every loaded module the level permits")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&f.noJournal, "no-journal", false, "Do not write the audit log or history")
}

func (f *snippetFlags) request(source string) executor.Request {
	req := executor.Request{
		Source:          source,
		Namespace:       f.namespace,
		TypeName:        f.typeName,
		ExtraReferences: f.refs,
		Mode:            model.ModeProject,
	}
	if f.allLoaded {
		req.Mode = model.ModeAllLoaded
	}
	return req
}

var (
	runFlags    snippetFlags
	runParams   []string
	runParallel bool
	runNoWait   bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd)
	runCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "Parameter key=value; value is parsed as JSON when possible (repeatable)")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Run in the parallel lane")
	runCmd.Flags().BoolVar(&runNoWait, "no-wait", false, "Return immediately; the process still waits for the run before exiting")
}

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Compile and run a snippet",
	Long: "Compiles a snippet (a file, stdin with -, or --expr), resolves missing imports,\n" +
		"checks it against the security level and runs it. Ctrl-C cancels the run.",
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(args, runFlags.expr, cmd.InOrStdin())
	if err != nil {
		return err
	}
	params, err := parseParams(runParams)
	if err != nil {
		return err
	}

	svc, err := openService(runFlags.noJournal)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := runFlags.request(source)
	req.Params = params
	req.AllowParallel = runParallel
	req.NoWait = runNoWait

	res := svc.Execute(ctx, req)
	if err := renderExecution(cmd.OutOrStdout(), res, runFlags.jsonOut); err != nil {
		return err
	}
	if !res.Success {
		return errFailed
	}
	return nil
}

// readSource returns the snippet from --expr, a file, or stdin ("-").
func readSource(args []string, expr string, stdin io.Reader) (string, error) {
	switch {
	case expr != "" && len(args) > 0:
		return "", fmt.Errorf("use either --expr or a file argument, not both")
	case expr != "":
		return expr, nil
	case len(args) == 0:
		return "", fmt.Errorf("no snippet: pass a file, - for stdin, or --expr")
	case args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read snippet: %w", err)
		}
		return string(data), nil
	}
}

// parseParams turns key=value pairs into a params map. Values that parse
// as JSON keep their JSON type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q: want key=value", p)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			params[k] = parsed
		} else {
			params[k] = v
		}
	}
	return params, nil
}

func renderExecution(w io.Writer, res model.ExecutionResult, asJSON bool) error {
	if asJSON {
		res.Result = model.Portable(res.Result)
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	for _, line := range res.Logs {
		fmt.Fprintln(w, line)
	}
	renderDiagnostics(w, res.Diagnostics, res.Violations, res.AmbiguousTypeCandidates)
	if !res.Success {
		fmt.Fprintf(w, "FAILED (%s): %s\n", res.FailureReason, res.ErrorMessage)
		return nil
	}
	if res.Outcome == model.OutcomeExecutedWithValue {
		fmt.Fprintf(w, "=> %s\n", formatValue(res.Result))
	}
	return nil
}

func renderDiagnostics(w io.Writer, diags []model.Diagnostic, vs []model.SecurityViolation, ambiguous map[string][]string) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s\n", d)
	}
	for _, v := range vs {
		fmt.Fprintf(w, "line %d: %s: %s\n    %s\n", v.Line, v.Kind, v.Description, v.Fragment)
	}
	names := make([]string, 0, len(ambiguous))
	for name := range ambiguous {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s is ambiguous: %s\n", name, strings.Join(ambiguous[name], ", "))
	}
}

// formatValue renders a result as JSON when it encodes, %v otherwise.
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if out, err := json.Marshal(v); err == nil {
		return string(out)
	}
	return fmt.Sprintf("%v", v)
}
