package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/vango-dev/isomorph/internal/build"
)

func buildCmd(flags *globalFlags) *cobra.Command {
	var (
		output string
		public string
		clean  bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fingerprint client assets",
		Long: `Copy every file under build.public to build.output with a content hash
in its name and write manifest.json. When assets.s3.bucket is set the
result is uploaded to the bucket as well.

Examples:
  isomorph build
  isomorph build --public=web --output=dist --clean`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Build.Output = output
			}
			if public != "" {
				cfg.Build.Public = public
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			result, err := build.New(cfg, build.Options{
				Clean:      clean,
				OnProgress: func(step string) { info("%s", step) },
			}).Build(ctx)
			if err != nil {
				return err
			}

			success("Built %d assets (%d bytes) in %s", len(result.Manifest), result.Bytes, result.Duration.Round(1e6))
			info("Output: %s", result.Output)
			if result.Uploaded > 0 {
				success("Uploaded %d objects to s3://%s", result.Uploaded, cfg.Assets.S3.Bucket)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default from isomorph.json)")
	cmd.Flags().StringVar(&public, "public", "", "Asset source directory (default from isomorph.json)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Remove the output directory first")

	return cmd
}
