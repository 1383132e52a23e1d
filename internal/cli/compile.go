package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var compileFlags snippetFlags

func init() {
	rootCmd.AddCommand(compileCmd)
	compileFlags.register(compileCmd)
}

var compileCmd = &cobra.Command{
	Use:   "compile [file|-]",
	Short: "Compile and check a snippet without running it",
	Long:  "Prints the wrapped source with resolved imports, then any diagnostics and security violations.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCompile,
}

func runCompile(cmd *cobra.Command, args []string) error {
	source, err := readSource(args, compileFlags.expr, cmd.InOrStdin())
	if err != nil {
		return err
	}

	svc, err := openService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	res := svc.Compile(context.Background(), compileFlags.request(source))
	w := cmd.OutOrStdout()

	if compileFlags.jsonOut {
		out := struct {
			Success  bool     `json:"success"`
			Error    string   `json:"errorMessage,omitempty"`
			Imports  []string `json:"imports,omitempty"`
			Key      string   `json:"key,omitempty"`
			Compiled any      `json:"result"`
		}{Success: res.Success, Error: res.ErrorMessage(), Compiled: res}
		if res.Module != nil {
			out.Imports = res.Module.Imports
			out.Key = res.Module.Key
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	} else {
		if res.UpdatedCode != "" {
			fmt.Fprintln(w, res.UpdatedCode)
		}
		renderDiagnostics(w, res.Diagnostics, res.Violations, res.AmbiguousTypeCandidates)
		if res.Success {
			fmt.Fprintf(w, "OK: %s.%s", res.Module.Package, res.Module.Entry)
			if res.Module.SyncEntry != "" {
				fmt.Fprintf(w, " (sync %s)", res.Module.SyncEntry)
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintln(w, "FAILED: "+res.ErrorMessage())
		}
	}

	if !res.Success {
		return errFailed
	}
	return nil
}
