package server

import (
	"fmt"
	"net/http"

	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/routepath"
	"github.com/vango-dev/isomorph/pkg/session"
	"github.com/vango-dev/isomorph/pkg/view"
)

// App is one application the server hosts.
type App struct {
	// Name identifies the app in socket paths, metrics and logs.
	Name string

	// Path is the page route. Defaults to "/" + Name.
	Path string

	Title string
	View  view.View
	Codec *protocol.Codec

	// Seed returns the initial state for a page request. Nil renders the
	// view's own initial values.
	Seed func(r *http.Request) (reactive.Snapshot, error)

	// Handler creates the session handler for a socket request. Nil
	// accepts connections that only exchange built-in messages.
	Handler func(r *http.Request) session.Handler

	// Bundle and StyleSheets are logical asset names resolved through the
	// asset manifest. Bundle defaults to Name + ".js".
	Bundle      string
	StyleSheets []string
}

func (a *App) validate() error {
	if a.Name == "" || a.View == nil {
		return fmt.Errorf("%w: %q needs a name and a view", ErrInvalidApp, a.Name)
	}
	if a.Path == "" {
		a.Path = "/" + a.Name
	}
	canon, err := routepath.Canonicalize(a.Path)
	if err != nil || canon.Query != "" {
		return fmt.Errorf("%w: %q has a bad path %q", ErrInvalidApp, a.Name, a.Path)
	}
	a.Path = canon.Path
	if a.Codec == nil {
		a.Codec = protocol.NewCodec(nil)
	}
	if a.Bundle == "" {
		a.Bundle = a.Name + ".js"
	}
	return nil
}

func (a *App) socketPath() string {
	return "/ws/" + a.Name
}

func (a *App) handler(r *http.Request) session.Handler {
	if a.Handler == nil {
		return session.Funcs{}
	}
	return a.Handler(r)
}
