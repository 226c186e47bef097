package server

import (
	"net/http"

	"github.com/vango-dev/isomorph/pkg/routepath"
)

// canonicalPaths redirects requests for a non-canonical path to its
// canonical form and rejects paths that cannot be canonicalized.
func (s *Server) canonicalPaths(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := routepath.Canonicalize(r.URL.EscapedPath())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if res.Changed {
			res.Query = r.URL.RawQuery
			http.Redirect(w, r, res.URL(), http.StatusPermanentRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}
