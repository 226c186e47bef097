package race

import (
	"net/http"

	"github.com/vango-dev/isomorph/pkg/server"
	"github.com/vango-dev/isomorph/pkg/session"
)

// Name is the application name used in socket paths and metrics.
const Name = "race"

// Path is where the race page is served.
const Path = "/race"

// App returns the race's server registration. Every session joins l.
func App(l *Lobby) server.App {
	return server.App{
		Name:  Name,
		Path:  Path,
		Title: "Race",
		View:  View(Path),
		Codec: Codec(),
		Handler: func(*http.Request) session.Handler {
			return l.Handler()
		},
		StyleSheets: []string{"race.css"},
	}
}
