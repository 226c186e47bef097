package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/isomorph/pkg/server"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr      string
		assetDir  string
		s3Bucket  string
		h2c       bool
		logLevel  string
		logFormat string
		maxPerIP  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the applications",
		Long: `Serve the counter and race applications.

Configuration is read from isomorph.json in --dir, then from ISOMORPH_*
environment variables, then from flags.

Routes:
  /            counter page (?start=N seeds the count)
  /race        race page
  /ws/{app}    live session socket
  /pkg/*       fingerprinted assets
  /metrics     Prometheus metrics
  /healthz     health check

Examples:
  isomorph serve
  isomorph serve --addr=:3000 --log-level=debug
  ISOMORPH_S3_BUCKET=my-assets isomorph serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if f.Changed("assets") {
				cfg.Assets.Dir = assetDir
			}
			if f.Changed("s3-bucket") {
				cfg.Assets.S3.Bucket = s3Bucket
			}
			if f.Changed("h2c") {
				cfg.Server.H2C = h2c
			}
			if f.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if f.Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if f.Changed("max-per-ip") {
				cfg.Session.MaxPerIP = maxPerIP
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.Logger(os.Stderr)
			slog.SetDefault(logger)

			srv, err := server.New(cfg, apps(logger), server.WithLogger(logger))
			if err != nil {
				return err
			}

			printBanner()
			info("Listening on %s", cfg.Server.Addr)
			info("Applications: %v", srv.Apps())
			if cfg.Assets.S3.Bucket != "" {
				info("Assets: s3://%s/%s", cfg.Assets.S3.Bucket, cfg.Assets.S3.Prefix)
			} else {
				info("Assets: %s", cfg.AssetDir())
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from isomorph.json)")
	cmd.Flags().StringVar(&assetDir, "assets", "", "Local asset directory")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "Serve assets from this S3 bucket")
	cmd.Flags().BoolVar(&h2c, "h2c", false, "Enable cleartext HTTP/2")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().IntVar(&maxPerIP, "max-per-ip", 0, "Maximum live sessions per client IP")

	return cmd
}
