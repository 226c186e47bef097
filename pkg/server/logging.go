package server

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// logRequests logs one line per request at debug level, and at warn level
// for server errors.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logf := s.logger.Debug
		if status >= http.StatusInternalServerError {
			logf = s.logger.Warn
		}
		logf("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}
