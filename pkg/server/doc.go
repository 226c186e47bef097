// Package server serves isomorph applications over HTTP.
//
// Each App gets a page route, rendered on the server with its state
// snapshot embedded, and a WebSocket endpoint at /ws/{name} where every
// connection becomes a session.Session. The server also mounts the asset
// source under the configured prefix and exposes /metrics and /healthz.
//
//	srv, err := server.New(cfg, []server.App{counterApp, raceApp})
//	if err != nil {
//	    return err
//	}
//	return srv.ListenAndServe(ctx)
//
// Rendered pages are cached in an LRU keyed by a digest of the app, its
// seed state and socket reference, so repeated requests for the same state
// skip the render.
package server
