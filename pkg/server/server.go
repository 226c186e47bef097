package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	"github.com/vango-dev/isomorph/internal/config"
	ierrors "github.com/vango-dev/isomorph/internal/errors"
	"github.com/vango-dev/isomorph/pkg/assets"
	"github.com/vango-dev/isomorph/pkg/middleware"
	"github.com/vango-dev/isomorph/pkg/render"
	"github.com/vango-dev/isomorph/pkg/session"
	"github.com/vango-dev/isomorph/pkg/transport"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry sets the Prometheus registry metrics are registered with
// and /metrics serves. Default: a fresh registry with Go and process
// collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithAssetSource overrides the asset source built from configuration.
func WithAssetSource(src assets.Source) Option {
	return func(s *Server) { s.source = src }
}

// Server hosts isomorph apps.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	base   *slog.Logger // Unscoped; components add their own attribute

	apps     map[string]*App
	order    []*App
	router   chi.Router
	manager  *session.Manager
	renderer *render.Renderer
	cache    *lru.Cache[uint64, []byte]
	metrics  *middleware.Metrics
	registry *prometheus.Registry
	upgrader *websocket.Upgrader

	source   assets.Source
	resolver *assets.Resolver

	httpServer *http.Server
}

// New creates a server for apps. cfg must be valid.
func New(cfg *config.Config, apps []App, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:  cfg,
		apps: make(map[string]*App),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.base = s.logger
	s.logger = s.base.With("component", "server")

	paths := make(map[string]bool)
	for i := range apps {
		app := apps[i]
		if err := app.validate(); err != nil {
			return nil, err
		}
		if s.apps[app.Name] != nil || paths[app.Path] {
			return nil, fmt.Errorf("%w: %s (%s)", ErrDuplicateApp, app.Name, app.Path)
		}
		paths[app.Path] = true
		s.apps[app.Name] = &app
		s.order = append(s.order, &app)
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.metrics = middleware.NewMetrics(middleware.WithRegistry(s.registry))

	if cfg.Render.CacheSize > 0 {
		cache, err := lru.New[uint64, []byte](cfg.Render.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("server: render cache: %w", err)
		}
		s.cache = cache
	}

	if s.source == nil {
		src, err := newAssetSource(cfg)
		if err != nil {
			return nil, ierrors.New("E161").Wrap(err)
		}
		s.source = src
	}
	manifest, err := assets.LoadManifest(context.Background(), s.source)
	if err != nil {
		s.logger.Warn("asset manifest unavailable; serving logical names", "error", err)
		manifest = assets.NewManifest()
	}
	s.resolver = assets.NewResolver(manifest, cfg.Assets.Prefix)

	s.renderer = render.NewRenderer(render.Config{Logger: s.base})
	s.manager = session.NewManager(session.ManagerConfig{
		MaxSessionsPerIP: cfg.Session.MaxPerIP,
		Logger:           s.base,
	})
	s.upgrader = transport.NewUpgrader()
	s.upgrader.CheckOrigin = s.checkOrigin

	s.router = s.routes()
	return s, nil
}

func newAssetSource(cfg *config.Config) (assets.Source, error) {
	if s3cfg := cfg.Assets.S3; s3cfg.Bucket != "" {
		return assets.NewS3(assets.S3Config{
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			UsePathStyle:    s3cfg.PathStyle,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			SessionToken:    s3cfg.SessionToken,
		})
	}
	return assets.NewDir(cfg.AssetDir()), nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		s.logRequests,
		chimw.Recoverer,
		s.canonicalPaths,
		s.metrics.Instrument,
		middleware.Trace("isomorph/http"),
	)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	prefix := s.cfg.Assets.Prefix
	r.Handle(prefix+"*", http.StripPrefix(strings.TrimSuffix(prefix, "/"),
		assets.NewHandler(s.source, s.resolver.Manifest(), s.base)))

	for _, app := range s.order {
		r.Get(app.Path, s.handlePage(app))
	}
	r.Get("/ws/{app}", s.handleSocket)
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	if s.cfg.Server.H2C {
		return h2c.NewHandler(s.router, &http2.Server{})
	}
	return s.router
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager { return s.manager }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *middleware.Metrics { return s.metrics }

// Apps returns the hosted apps in registration order.
func (s *Server) Apps() []string {
	names := make([]string, len(s.order))
	for i, a := range s.order {
		names[i] = a.Name
	}
	return names
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
		"apps":     s.Apps(),
	})
}

// checkOrigin allows same-origin sockets and configured extra origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	if transport.SameOriginCheck(r) {
		return true
	}
	origin := r.Header.Get("Origin")
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}

func (s *Server) transportOptions(app *App) transport.Options {
	sc := s.cfg.Session
	return transport.Options{
		Codec:        app.Codec,
		Observer:     s.metrics.Observer(app.Name, app.Codec.Registry()),
		QueueSize:    sc.QueueSize,
		WriteTimeout: sc.WriteTimeout.Std(),
		ReadTimeout:  sc.ReadTimeout.Std(),
		PingInterval: sc.PingInterval.Std(),
		RateLimit:    rate.Limit(sc.RateLimit),
		RateBurst:    sc.RateBurst,
	}
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return ierrors.New("E160").WithDetail(s.cfg.Server.Addr).Wrap(err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String(), "apps", s.Apps(), "h2c", s.cfg.Server.H2C)
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes every session, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return ierrors.New("E162").Wrap(err)
	}
	s.logger.Info("server shutdown complete")
	return nil
}
