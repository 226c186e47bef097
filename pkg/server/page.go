package server

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/render"
)

func (s *Server) handlePage(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var seed reactive.Snapshot
		if app.Seed != nil {
			var err error
			if seed, err = app.Seed(r); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		socket := app.socketPath()
		if r.URL.RawQuery != "" {
			socket += "?" + r.URL.RawQuery
		}

		page, err := s.render(r.Context(), app, seed, socket)
		if err != nil {
			s.logger.Error("render failed", "app", app.Name, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(page)))
		_, _ = w.Write(page)
	}
}

// RenderApp renders the named app's page for seed. socket is the
// reference written to data-ws; empty uses /ws/{name}.
func (s *Server) RenderApp(ctx context.Context, name string, seed reactive.Snapshot, socket string) ([]byte, error) {
	app, ok := s.apps[name]
	if !ok {
		return nil, ErrUnknownApp
	}
	if socket == "" {
		socket = app.socketPath()
	}
	return s.render(ctx, app, seed, socket)
}

func (s *Server) render(ctx context.Context, app *App, seed reactive.Snapshot, socket string) ([]byte, error) {
	var key uint64
	if s.cache != nil {
		k, err := cacheKey(app.Name, socket, seed)
		if err != nil {
			return nil, err
		}
		key = k
		if page, ok := s.cache.Get(key); ok {
			s.metrics.RenderCache(true)
			return page, nil
		}
		s.metrics.RenderCache(false)
	}

	start := time.Now()
	st := reactive.NewStore(reactive.WithLogger(s.logger))
	defer st.Dispose()
	if len(seed) > 0 {
		if err := st.Restore(seed); err != nil {
			return nil, err
		}
	}
	res, err := s.renderer.Render(ctx, st, app.View)
	if err != nil {
		return nil, err
	}

	styles := make([]string, len(app.StyleSheets))
	for i, name := range app.StyleSheets {
		styles[i] = s.resolver.URL(name)
	}
	var buf bytes.Buffer
	err = s.renderer.RenderPage(&buf, render.Page{
		Title:       app.Title,
		App:         app.Name,
		Socket:      socket,
		StyleSheets: styles,
		Bundle:      s.resolver.URL(app.Bundle),
	}, res)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRender(app.Name, time.Since(start))

	page := buf.Bytes()
	if s.cache != nil {
		s.cache.Add(key, page)
	}
	return page, nil
}

// cacheKey digests everything a page depends on besides the view code.
func cacheKey(app, socket string, seed reactive.Snapshot) (uint64, error) {
	state, err := seed.Marshal()
	if err != nil {
		return 0, err
	}
	d := xxhash.New()
	_, _ = d.WriteString(app)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(socket)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(state)
	return d.Sum64(), nil
}
