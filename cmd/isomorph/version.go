package main

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version, build and wire protocol information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return nil
			}
			printVersion(out)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	return cmd
}

func printVersion(out io.Writer) {
	fmt.Fprint(out, banner)
	fmt.Fprintf(out, "\n  %-10s %s\n", "Version", version)
	fmt.Fprintf(out, "  %-10s %s\n", "Commit", buildCommit())
	fmt.Fprintf(out, "  %-10s %s\n", "Built", date)
	fmt.Fprintf(out, "  %-10s %s %s/%s\n", "Go", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	fmt.Fprintf(out, "\n  Applications:\n")
	for _, app := range apps(slog.New(slog.DiscardHandler)) {
		path := app.Path
		if path == "" {
			path = "/" + app.Name
		}
		fmt.Fprintf(out, "    %-8s %-6s %s\n", app.Name, path, variants(app.Codec))
	}
	fmt.Fprintln(out)
}

// variants lists the application messages a codec accepts, by name.
func variants(c *protocol.Codec) string {
	if c == nil {
		return "-"
	}
	var names []string
	for _, tag := range c.Registry().Tags() {
		if tag >= protocol.FirstAppTag {
			names = append(names, c.Registry().Name(tag))
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// buildCommit falls back to the VCS revision the toolchain stamped when
// no commit was set with -ldflags.
func buildCommit() string {
	if commit != "none" {
		return commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return commit
}
