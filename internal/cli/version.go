package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/sdk/go/host"
)

const version = "0.4.0"

var versionShort bool

func init() {
	if host.Version == "dev" {
		host.Version = "v" + version
	}
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		}
		return writeJSON(cmd.OutOrStdout(), versionInfo())
	},
}

func versionInfo() map[string]string {
	info := map[string]string{
		"name":    "livecode",
		"version": version,
		"go":      runtime.Version(),
		"yaegi":   "unknown",
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, dep := range bi.Deps {
		if dep.Path == "github.com/traefik/yaegi" {
			info["yaegi"] = dep.Version
		}
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info["commit"] = s.Value
		}
	}
	return info
}
