package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/isomorph/internal/errors"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/server"
)

func renderCmd(flags *globalFlags) *cobra.Command {
	var (
		state  string
		output string
		socket string
	)

	cmd := &cobra.Command{
		Use:   "render <app>",
		Short: "Render an application page to HTML",
		Long: `Render one application's page exactly as the server would and write
it to stdout or a file. --state seeds keyed cells with a JSON object.

Examples:
  isomorph render counter
  isomorph render counter --state='{"count": 41}' -o counter.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			srv, err := server.New(cfg, apps(logger),
				server.WithLogger(logger),
				server.WithRegistry(prometheus.NewRegistry()),
			)
			if err != nil {
				return err
			}

			name := args[0]
			if !slices.Contains(srv.Apps(), name) {
				return errors.New("E140").WithDetailf("%q", name)
			}
			var seed reactive.Snapshot
			if state != "" {
				if seed, err = reactive.ParseSnapshot([]byte(state)); err != nil {
					return errors.New("E141").WithDetail("--state is not a JSON object").Wrap(err)
				}
			}

			page, err := srv.RenderApp(context.Background(), name, seed, socket)
			if err != nil {
				return errors.New("E141").Wrap(err)
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(page)
				return err
			}
			if err := os.WriteFile(output, page, 0o644); err != nil {
				return errors.New("E141").Wrap(err)
			}
			success("Wrote %s (%d bytes)", output, len(page))
			return nil
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "Initial state as a JSON object")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file ('-' for stdout)")
	cmd.Flags().StringVar(&socket, "socket", "", "Socket reference written to data-ws (default /ws/<app>)")

	return cmd
}
