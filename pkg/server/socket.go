package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/session"
)

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	app, ok := s.apps[chi.URLParam(r, "app")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	// Reject before upgrading so the client sees a plain HTTP status.
	ip := session.ClientIP(r)
	if err := s.manager.CheckIPLimit(ip); err != nil {
		s.logger.Warn("session rejected", "app", app.Name, "ip", ip, "error", err)
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	sess, err := session.Accept(w, r, app.handler(r), session.Config{
		App:       app.Name,
		Logger:    s.base,
		Transport: s.transportOptions(app),
		Upgrader:  s.upgrader,
		QueueSize: s.cfg.Session.QueueSize,
	})
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "app", app.Name, "error", err)
		return
	}

	if err := s.manager.Add(sess); err != nil {
		reason := protocol.CloseError
		if errors.Is(err, session.ErrManagerStopped) {
			reason = protocol.CloseServerShutdown
		}
		sess.Close(reason, err.Error())
		return
	}
	s.metrics.SessionOpened(app.Name)
	sess.OnClose(func(*session.Session) { s.metrics.SessionClosed(app.Name) })
	sess.Start()
}
