package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/internal/config"
	ierrors "github.com/vango-dev/isomorph/internal/errors"
	"github.com/vango-dev/isomorph/pkg/assets"
	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/render"
	"github.com/vango-dev/isomorph/pkg/server"
	"github.com/vango-dev/isomorph/pkg/session"
	"github.com/vango-dev/isomorph/pkg/view"
)

func greeting(st *reactive.Store) *view.Node {
	name := reactive.New(st, "name", "world")
	return view.Div(view.Class("greeting"),
		view.Dyn(func() *view.Node { return view.P(view.Textf("hello %s", name.Get())) }),
	)
}

func greetApp() server.App {
	return server.App{
		Name:  "greet",
		Path:  "/",
		Title: "Greeting",
		View:  greeting,
		Seed: func(r *http.Request) (reactive.Snapshot, error) {
			n := r.URL.Query().Get("name")
			if n == "" {
				return nil, nil
			}
			raw, err := json.Marshal(n)
			return reactive.Snapshot{"name": raw}, err
		},
		Handler: func(*http.Request) session.Handler {
			return session.Funcs{
				OnMount: func(s *session.Session) {
					reactive.New(s.Store(), "name", "server")
					_ = s.Sync("name")
				},
			}
		},
		StyleSheets: []string{"app.css"},
	}
}

type fixture struct {
	srv *server.Server
	reg *prometheus.Registry
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.abc123.js"), []byte("boot()"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, assets.ManifestName),
		[]byte(`{"greet.js":"greet.abc123.js"}`), 0o644))

	cfg := config.New()
	cfg.Session.PingInterval = config.Duration(-1)
	if mutate != nil {
		mutate(cfg)
	}
	reg := prometheus.NewRegistry()
	srv, err := server.New(cfg, []server.App{greetApp()},
		server.WithRegistry(reg),
		server.WithAssetSource(assets.NewDir(dir)),
	)
	require.NoError(t, err)
	return &fixture{srv: srv, reg: reg, dir: dir, cfg: cfg}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNewRejectsBadApps(t *testing.T) {
	cfg := config.New()
	src := server.WithAssetSource(assets.NewDir(t.TempDir()))

	_, err := server.New(cfg, []server.App{{Name: "x"}}, src)
	assert.ErrorIs(t, err, server.ErrInvalidApp)

	_, err = server.New(cfg, []server.App{greetApp(), greetApp()}, src)
	assert.ErrorIs(t, err, server.ErrDuplicateApp)

	bad := greetApp()
	bad.Path = "/../greet"
	_, err = server.New(cfg, []server.App{bad}, src)
	assert.ErrorIs(t, err, server.ErrInvalidApp)

	// Paths that differ only in form are the same route.
	other := greetApp()
	other.Name, other.Path = "other", "//"
	_, err = server.New(cfg, []server.App{greetApp(), other}, src)
	assert.ErrorIs(t, err, server.ErrDuplicateApp)
}

func TestPageRender(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.Handler()

	rec := get(t, h, "/?name=gopher")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "<title>Greeting</title>")
	assert.Contains(t, body, "hello gopher")
	assert.Contains(t, body, `data-ws="/ws/greet?name=gopher"`)
	assert.Contains(t, body, `id="`+render.StateID+`"`)
	assert.Contains(t, body, `/pkg/greet.abc123.js`)
	assert.Contains(t, body, `/pkg/app.css`)
}

func TestPageRenderCache(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.Handler()

	first := get(t, h, "/?name=a").Body.String()
	second := get(t, h, "/?name=a").Body.String()
	get(t, h, "/?name=b")

	assert.Equal(t, first, second)
	metrics := scrape(t, h)
	assert.Contains(t, metrics, `isomorph_render_cache_total{result="hit"} 1`)
	assert.Contains(t, metrics, `isomorph_render_cache_total{result="miss"} 2`)
}

func TestPageRenderCacheDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Render.CacheSize = -1 })
	h := f.srv.Handler()

	get(t, h, "/")
	get(t, h, "/")

	n, err := testutil.GatherAndCount(f.reg, "isomorph_render_cache_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRenderApp(t *testing.T) {
	f := newFixture(t, nil)

	raw, _ := json.Marshal("cli")
	page, err := f.srv.RenderApp(context.Background(), "greet", reactive.Snapshot{"name": raw}, "")
	require.NoError(t, err)
	assert.Contains(t, string(page), "hello cli")
	assert.Contains(t, string(page), `data-ws="/ws/greet"`)

	_, err = f.srv.RenderApp(context.Background(), "nope", nil, "")
	assert.ErrorIs(t, err, server.ErrUnknownApp)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.Handler()

	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status   string   `json:"status"`
		Sessions int      `json:"sessions"`
		Apps     []string `json:"apps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, []string{"greet"}, health.Apps)

	get(t, h, "/")
	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "isomorph_render_duration_seconds")
	assert.Contains(t, rec.Body.String(), `isomorph_http_requests_total{route="/",status="200"} 1`)
}

func TestAssets(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.Handler()

	rec := get(t, h, "/pkg/greet.abc123.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boot()", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/pkg/missing.js").Code)
}

func TestCanonicalPaths(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.Handler()

	rec := get(t, h, "/pkg/../pkg/greet.abc123.js")
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/pkg/greet.abc123.js", rec.Header().Get("Location"))

	rec = get(t, h, "//?name=gopher")
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/?name=gopher", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/a%00b").Code)
}

func TestSocketUnknownApp(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, f.srv.Handler(), "/ws/nope").Code)
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn, c *protocol.Codec) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)
	f, err := c.DecodeFrame(data)
	require.NoError(t, err)
	return f.Message
}

func TestSocketSession(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/greet"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	c := protocol.NewCodec(nil)
	welcome, ok := readMessage(t, conn, c).(*protocol.Welcome)
	require.True(t, ok)
	assert.NotEmpty(t, welcome.SessionID)

	su, ok := readMessage(t, conn, c).(*protocol.StateUpdate)
	require.True(t, ok)
	assert.Equal(t, "name", su.Key)
	assert.JSONEq(t, `"server"`, string(su.Value))

	require.Eventually(t, func() bool { return f.srv.Sessions().Get(welcome.SessionID) != nil },
		time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(t, ts.Config.Handler), `isomorph_sessions_active{app="greet"} 1`)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		c.EncodeFrame(1, &protocol.Close{Reason: protocol.CloseNormal})))
	require.Eventually(t, func() bool { return f.srv.Sessions().Count() == 0 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, ts.Config.Handler), `isomorph_sessions_active{app="greet"} 0`)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(t, ts.Config.Handler), `isomorph_messages_received_total{app="greet",message="Close"} 1`)
}

// logBuffer collects JSON log lines from concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestLogRecordsCarryOneComponent(t *testing.T) {
	var logs logBuffer
	cfg := config.New()
	cfg.Session.PingInterval = config.Duration(-1)
	srv, err := server.New(cfg, []server.App{greetApp()},
		server.WithRegistry(prometheus.NewRegistry()),
		server.WithAssetSource(assets.NewDir(t.TempDir())),
		server.WithLogger(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/greet"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	readMessage(t, conn, protocol.NewCodec(nil))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		protocol.NewCodec(nil).EncodeFrame(1, &protocol.Close{Reason: protocol.CloseNormal})))
	require.Eventually(t, func() bool {
		return strings.Contains(strings.Join(logs.lines(), "\n"), `"msg":"session closed"`)
	}, 2*time.Second, 10*time.Millisecond)

	var components []string
	for _, line := range logs.lines() {
		assert.LessOrEqual(t, strings.Count(line, `"component":`), 1, line)
		var rec struct {
			Component string `json:"component"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		components = append(components, rec.Component)
	}
	assert.Contains(t, components, "session")
}

func TestSocketIPLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Session.MaxPerIP = 1 })
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/greet"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	readMessage(t, conn, protocol.NewCodec(nil))

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts, "/ws/greet"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "too many sessions")
}

func TestSocketOrigin(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Server.AllowedOrigins = []string{"https://app.example.com"} })
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/greet"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/greet"), header)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestServeAndShutdown(t *testing.T) {
	f := newFixture(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/greet", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	c := protocol.NewCodec(nil)
	readMessage(t, conn, c)
	readMessage(t, conn, c)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	closeMsg, ok := readMessage(t, conn, c).(*protocol.Close)
	require.True(t, ok)
	assert.Equal(t, protocol.CloseServerShutdown, closeMsg.Reason)
	assert.Equal(t, 0, f.srv.Sessions().Count())
}

func TestListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	f := newFixture(t, func(c *config.Config) { c.Server.Addr = ln.Addr().String() })
	err = f.srv.ListenAndServe(context.Background())
	assert.True(t, ierrors.HasCode(err, "E160"))
}
