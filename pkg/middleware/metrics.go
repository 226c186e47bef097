package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/transport"
)

// MetricsConfig configures Metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "isomorph").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures Metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "isomorph",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the server's Prometheus collectors. Create one per registry.
type Metrics struct {
	sessionsActive *prometheus.GaugeVec
	sessionsTotal  *prometheus.CounterVec
	messagesIn     *prometheus.CounterVec
	messagesOut    *prometheus.CounterVec
	messageBytes   *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	renderCache    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)
	ns, cl := config.Namespace, config.ConstLabels

	return &Metrics{
		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "sessions_active",
			Help:        "Number of live sessions",
			ConstLabels: cl,
		}, []string{"app"}),

		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "sessions_total",
			Help:        "Total number of accepted sessions",
			ConstLabels: cl,
		}, []string{"app"}),

		messagesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "messages_received_total",
			Help:        "Messages decoded from clients",
			ConstLabels: cl,
		}, []string{"app", "message"}),

		messagesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "messages_sent_total",
			Help:        "Messages written to clients",
			ConstLabels: cl,
		}, []string{"app", "message"}),

		messageBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "message_bytes_total",
			Help:        "Frame bytes by direction",
			ConstLabels: cl,
		}, []string{"direction"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "protocol_errors_total",
			Help:        "Connections closed for protocol errors, by kind",
			ConstLabels: cl,
		}, []string{"kind"}),

		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "render_duration_seconds",
			Help:        "Server render duration in seconds",
			ConstLabels: cl,
			Buckets:     config.Buckets,
		}, []string{"app"}),

		renderCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "render_cache_total",
			Help:        "Render cache lookups by result",
			ConstLabels: cl,
		}, []string{"result"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "http_requests_total",
			Help:        "HTTP requests by route and status",
			ConstLabels: cl,
		}, []string{"route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: cl,
			Buckets:     config.Buckets,
		}, []string{"route"}),
	}
}

// SessionOpened records a new session for app.
func (m *Metrics) SessionOpened(app string) {
	m.sessionsTotal.WithLabelValues(app).Inc()
	m.sessionsActive.WithLabelValues(app).Inc()
}

// SessionClosed records the end of a session for app.
func (m *Metrics) SessionClosed(app string) {
	m.sessionsActive.WithLabelValues(app).Dec()
}

// ObserveRender records one server render.
func (m *Metrics) ObserveRender(app string, d time.Duration) {
	m.renderDuration.WithLabelValues(app).Observe(d.Seconds())
}

// RenderCache records a cache lookup.
func (m *Metrics) RenderCache(hit bool) {
	if hit {
		m.renderCache.WithLabelValues("hit").Inc()
	} else {
		m.renderCache.WithLabelValues("miss").Inc()
	}
}

// Observer returns a transport observer for one application's channels.
// reg names message variants; nil uses the built-in registry.
func (m *Metrics) Observer(app string, reg *protocol.Registry) transport.Observer {
	if reg == nil {
		reg = protocol.NewRegistry()
	}
	return &observer{m: m, app: app, reg: reg}
}

type observer struct {
	m   *Metrics
	app string
	reg *protocol.Registry
}

func (o *observer) MessageReceived(tag protocol.Tag, size int) {
	o.m.messagesIn.WithLabelValues(o.app, o.reg.Name(tag)).Inc()
	o.m.messageBytes.WithLabelValues("in").Add(float64(size))
}

func (o *observer) MessageSent(tag protocol.Tag, size int) {
	o.m.messagesOut.WithLabelValues(o.app, o.reg.Name(tag)).Inc()
	o.m.messageBytes.WithLabelValues("out").Add(float64(size))
}

func (o *observer) ProtocolError(err error) {
	o.m.protocolErrors.WithLabelValues(errorKind(err)).Inc()
}

func errorKind(err error) string {
	var de *protocol.DecodeError
	switch {
	case errors.As(err, &de):
		return de.Kind.String()
	case errors.Is(err, protocol.ErrSequenceGap):
		return "SequenceGap"
	case errors.Is(err, transport.ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, transport.ErrUnexpectedFrame):
		return "UnexpectedFrame"
	default:
		return "Other"
	}
}

// Instrument records request counts and durations labelled by the chi
// route pattern. Mount it with Router.Use so the pattern is known.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
