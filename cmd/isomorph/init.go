package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/isomorph/internal/config"
	"github.com/vango-dev/isomorph/internal/errors"
	"github.com/vango-dev/isomorph/internal/templates"
)

func initCmd(flags *globalFlags) *cobra.Command {
	var (
		force    bool
		template string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default isomorph.json and starter assets",
		Long: `Write a default isomorph.json and scaffold the asset directory.

Templates:
  counter   the counter stylesheet only
  full      stylesheets for every application plus .env.example`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := templates.Get(template)
			if err != nil {
				return err
			}

			path := filepath.Join(flags.dir, config.ConfigFileName)
			if config.Exists(flags.dir) && !force {
				return errors.New("E122").
					WithDetailf("%s already exists", path).
					WithSuggestion("Pass --force to overwrite it")
			}
			cfg := config.New()
			if err := cfg.Save(path); err != nil {
				return err
			}
			success("Wrote %s", path)

			written, err := tmpl.Create(flags.dir, templates.Config{
				ProjectName: filepath.Base(absDir(flags.dir)),
				Addr:        cfg.Server.Addr,
				Public:      cfg.Build.Public,
			}, force)
			if err != nil {
				return err
			}
			for _, p := range written {
				success("Wrote %s", filepath.Join(flags.dir, p))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing files")
	cmd.Flags().StringVarP(&template, "template", "t", "full", "Scaffold template (counter, full)")
	return cmd
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
