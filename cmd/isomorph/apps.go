package main

import (
	"log/slog"

	"github.com/vango-dev/isomorph/internal/app/counter"
	"github.com/vango-dev/isomorph/internal/app/race"
	"github.com/vango-dev/isomorph/pkg/server"
)

// apps returns every application the binary hosts.
func apps(logger *slog.Logger) []server.App {
	return []server.App{
		counter.App(),
		race.App(race.NewLobby(logger, nil)),
	}
}
