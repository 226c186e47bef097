package assets

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves assets from src. Request paths are taken relative to the
// mount point, so wrap it with http.StripPrefix or mount it under a router
// wildcard.
type Handler struct {
	src      Source
	manifest *Manifest
	logger   *slog.Logger
}

// NewHandler creates a Handler. manifest may be nil.
func NewHandler(src Source, manifest *Manifest, logger *slog.Logger) *Handler {
	if manifest == nil {
		manifest = NewManifest()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{src: src, manifest: manifest, logger: logger.With("component", "assets")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	a, err := h.src.Open(r.Context(), name)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidName):
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Error("asset open failed", "name", name, "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer a.Body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", a.ContentType)
	hdr.Set("X-Content-Type-Options", "nosniff")
	if h.manifest.Fingerprinted(a.Name) {
		hdr.Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		hdr.Set("Cache-Control", "no-cache")
	}
	if a.ETag != "" {
		hdr.Set("ETag", a.ETag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == a.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if !a.ModTime.IsZero() {
		hdr.Set("Last-Modified", a.ModTime.UTC().Format(http.TimeFormat))
	}

	// Seekable bodies get ranges and conditional requests from net/http.
	if rs, ok := a.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, a.Name, a.ModTime, rs)
		return
	}
	if a.Size > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(a.Size, 10))
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, a.Body); err != nil {
		h.logger.Debug("asset copy interrupted", "name", name, "error", err)
	}
}
