package main

import (
	"os"

	"github.com/vango-dev/isomorph/internal/config"
)

// loadConfig reads the environment files, isomorph.json and ISOMORPH_*
// variables, in that order of increasing precedence.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if err := config.LoadEnvFiles(flags.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}
