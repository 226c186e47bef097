// Package middleware provides the observability layer for isomorph servers.
//
// # Prometheus Metrics
//
// Metrics registers collectors for sessions, wire messages, renders and HTTP
// requests. It hands out transport observers per application so message
// counters are labelled by variant name:
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	opts := transport.Options{Observer: m.Observer("counter", codec.Registry())}
//
// Metrics collected (namespace "isomorph"):
//   - sessions_active: Gauge of live sessions by app
//   - sessions_total: Counter of accepted sessions by app
//   - messages_received_total, messages_sent_total: Counters by app and variant
//   - message_bytes_total: Counter of frame bytes by direction
//   - protocol_errors_total: Counter by error kind
//   - render_duration_seconds: Histogram of SSR time by app
//   - render_cache_total: Counter of render cache lookups by result
//   - http_requests_total, http_request_duration_seconds: by route and status
//
// # OpenTelemetry Tracing
//
// Trace wraps an http.Handler so every request runs in a server span; the
// render and session packages start child spans from the request context.
package middleware
