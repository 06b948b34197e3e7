package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/kamusis/memview/cmd.version=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show memview version and build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(_ *cobra.Command, _ []string) error {
	v, c, d := buildInfo()
	fmt.Fprintf(stdout, "memview %s\n", v)
	fmt.Fprintf(stdout, "  Commit:     %s\n", emptyAsNA(c))
	fmt.Fprintf(stdout, "  Build Date: %s\n", emptyAsNA(d))
	fmt.Fprintf(stdout, "  Go Version: %s\n", runtime.Version())
	fmt.Fprintf(stdout, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}

// buildInfo prefers ldflags values and falls back to the module version and
// VCS stamps recorded by the Go toolchain.
func buildInfo() (v, c, d string) {
	v, c, d = version, commit, buildDate
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, c, d
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if c == "" {
				c = s.Value
			}
		case "vcs.time":
			if d == "" {
				d = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && commit == "" && c != "" {
		c += "-dirty"
	}
	return v, c, d
}

func emptyAsNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
