// Command isomorph serves, renders and builds the isomorph demo apps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/isomorph/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┬┌─┐┌─┐┌┬┐┌─┐┬─┐┌─┐┬ ┬
  │└─┐│ │││││ │├┬┘├─┘├─┤
  ┴└─┘└─┘┴ ┴└─┘┴└─┴  ┴ ┴
`

// globalFlags are shared by every command.
type globalFlags struct {
	dir      string
	envFiles []string
	noColor  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "isomorph",
		Short: "Server-rendered pages that stay live over WebSockets",
		Long: `isomorph renders views on the server, hydrates them in place on the
client and keeps keyed state in sync over a binary WebSocket protocol.

It ships two applications:

  • counter  a number the server owns and the page increments
  • race     a two-player sliding puzzle`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.dir, "dir", "C", ".", "Project directory holding isomorph.json")
	rootCmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Environment files to load (default .env if present)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		serveCmd(&flags),
		renderCmd(&flags),
		buildCmd(&flags),
		initCmd(&flags),
		versionCmd(),
	)
	return rootCmd
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
