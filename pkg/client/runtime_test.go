package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/pkg/dom"
	"github.com/vango-dev/isomorph/pkg/hydrate"
	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/render"
	"github.com/vango-dev/isomorph/pkg/session"
	"github.com/vango-dev/isomorph/pkg/transport"
	"github.com/vango-dev/isomorph/pkg/view"
)

type increment struct{}

const tagIncrement = protocol.FirstAppTag

func (*increment) Tag() protocol.Tag { return tagIncrement }
func (*increment) EncodeTo(*protocol.Encoder) {}
func (*increment) DecodeFrom(*protocol.Decoder) error { return nil }

func codec() *protocol.Codec {
	reg := protocol.NewRegistry()
	reg.MustRegister(tagIncrement, "Increment", func() protocol.Message { return &increment{} })
	return protocol.NewCodec(reg)
}

func counterView(st *reactive.Store) *view.Node {
	count := reactive.New(st, "count", 0)
	return view.Div(
		view.Dyn(func() *view.Node { return view.Span(view.Textf("%d", count.Get())) }),
		view.Button(view.OnClick(func() { _ = transport.Emit(st, &increment{}) }), "+"),
	)
}

// counterSession is the server side of counterView.
func counterSession() session.Handler {
	var count *reactive.Cell[int]
	return session.Funcs{
		OnMount: func(s *session.Session) {
			count = reactive.New(s.Store(), "count", 0)
			_ = s.Sync("count")
		},
		OnReceive: func(_ *session.Session, m protocol.Message) {
			if _, ok := m.(*increment); ok {
				count.Update(func(n int) int { return n + 1 })
			}
		},
	}
}

func renderPage(t *testing.T, v view.View, socket string) string {
	t.Helper()
	st := reactive.NewStore()
	defer st.Dispose()
	r := render.NewRenderer(render.Config{})
	res, err := r.Render(context.Background(), st, v)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.RenderPage(&buf, render.Page{Title: "t", App: "counter", Socket: socket}, res))
	return buf.String()
}

// onLoop runs fn on the event loop and returns its result.
func onLoop[T any](t *testing.T, rt *Runtime, fn func() T) T {
	t.Helper()
	out := make(chan T, 1)
	require.True(t, rt.Post(func() { out <- fn() }))
	select {
	case v := <-out:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not run task")
		var zero T
		return zero
	}
}

func findTag(n *dom.Node, tag string) *dom.Node {
	return n.Find(func(c *dom.Node) bool { return c.Type == dom.ElementNode && c.Tag == tag })
}

func TestBootHydratesPage(t *testing.T) {
	page := renderPage(t, counterView, "/ws/counter")
	rt, err := Boot(strings.NewReader(page), Config{View: counterView, Origin: "https://example.com/app"})
	require.NoError(t, err)

	assert.Equal(t, 0, rt.Document().Created())
	assert.Equal(t, hydrate.Attached, rt.Root().State())
	assert.Equal(t, "wss://example.com/ws/counter", rt.Endpoint())
	assert.Equal(t, []string{"count"}, rt.Store().Keys())
}

func TestBootReportsMismatch(t *testing.T) {
	page := renderPage(t, counterView, "")
	other := func(st *reactive.Store) *view.Node { return view.Div(view.P("x")) }

	rt, err := Boot(strings.NewReader(page), Config{View: other, Endpoint: "ws://unused"})
	require.True(t, hydrate.IsMismatch(err))
	require.NotNil(t, rt)

	assert.Equal(t, reactive.ReloadRequired, rt.Store().Status().Peek())
	assert.Equal(t, hydrate.Mismatched, rt.Root().State())

	prompt := rt.Document().GetElementByID(ReloadID)
	require.NotNil(t, prompt)
	assert.Same(t, rt.Document().GetElementByID(render.RootID).FirstChild, prompt)
	assert.Contains(t, prompt.TextContent(), StatusText(reactive.ReloadRequired))
	assert.NotNil(t, findTag(prompt, "a"))

	assert.ErrorIs(t, rt.Send(&increment{}), ErrOffline)

	var dials atomic.Int32
	rt.cfg.Dial = func(context.Context, string, transport.Options) (*transport.Channel, error) {
		dials.Add(1)
		return nil, transport.ErrConnectionLost
	}
	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)
	assert.Equal(t, reactive.ReloadRequired, onLoop(t, rt, rt.Store().Status().Peek))
	cancel()
	<-rt.Done()
	assert.Zero(t, dials.Load())
}

func TestBootWithoutRoot(t *testing.T) {
	_, err := Boot(strings.NewReader("<html><body><p>hi</p></body></html>"), Config{View: counterView})
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		origin, ref, want string
	}{
		{"http://localhost:8080/", "/ws/counter", "ws://localhost:8080/ws/counter"},
		{"https://example.com/race", "/ws/race", "wss://example.com/ws/race"},
		{"", "ws://other:9000/ws", "ws://other:9000/ws"},
	}
	for _, tt := range tests {
		got, err := resolveEndpoint(tt.origin, tt.ref)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := resolveEndpoint("", "/relative")
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestBackoff(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	assert.Equal(t, 100*time.Millisecond, Backoff(min, max, 1))
	assert.Equal(t, 200*time.Millisecond, Backoff(min, max, 2))
	assert.Equal(t, 800*time.Millisecond, Backoff(min, max, 4))
	assert.Equal(t, time.Second, Backoff(min, max, 5))
	assert.Equal(t, time.Second, Backoff(min, max, 50))
}

func counterServer(t *testing.T, sessions chan<- *session.Session) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := session.Accept(w, r, counterSession(), session.Config{
			App:       "counter",
			Transport: transport.Options{Codec: codec(), PingInterval: -1},
		})
		if err != nil {
			return
		}
		if sessions != nil {
			sessions <- s
		}
		s.Start()
		<-s.Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCounterEndToEnd(t *testing.T) {
	srv := counterServer(t, nil)
	page := renderPage(t, counterView, "/ws/counter")

	rt, err := Boot(strings.NewReader(page), Config{
		View:      counterView,
		Origin:    srv.URL,
		Codec:     codec(),
		Transport: transport.Options{PingInterval: -1},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-rt.Done()
	}()
	go rt.Run(ctx)

	require.Eventually(t, func() bool {
		return onLoop(t, rt, func() string { return rt.SessionID() }) != ""
	}, 2*time.Second, 10*time.Millisecond)

	span := onLoop(t, rt, func() *dom.Node { return findTag(rt.Document().Root, "span") })
	assert.Equal(t, "0", onLoop(t, rt, span.TextContent))

	button := onLoop(t, rt, func() *dom.Node { return findTag(rt.Document().Root, "button") })
	require.True(t, rt.Dispatch(button, dom.Event{Type: "click"}))

	require.Eventually(t, func() bool {
		return onLoop(t, rt, span.TextContent) == "1"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Same(t, span, onLoop(t, rt, func() *dom.Node { return findTag(rt.Document().Root, "span") }))
	assert.Equal(t, 0, onLoop(t, rt, rt.Document().Created))
	assert.Equal(t, reactive.Online, onLoop(t, rt, rt.Store().Status().Peek))
}

func TestReconnectStartsFreshSession(t *testing.T) {
	sessions := make(chan *session.Session, 4)
	srv := counterServer(t, sessions)
	page := renderPage(t, counterView, "/ws/counter")

	rt, err := Boot(strings.NewReader(page), Config{
		View:       counterView,
		Origin:     srv.URL,
		Codec:      codec(),
		Transport:  transport.Options{PingInterval: -1},
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	var statuses []reactive.Status
	require.True(t, rt.Post(func() {
		rt.Store().Effect(func() { statuses = append(statuses, rt.Store().Status().Get()) })
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-rt.Done()
	}()
	go rt.Run(ctx)

	first := <-sessions
	require.Eventually(t, func() bool {
		return onLoop(t, rt, rt.SessionID) == first.ID()
	}, 2*time.Second, 10*time.Millisecond)

	first.Close(protocol.CloseServerShutdown, "restart")

	second := <-sessions
	assert.NotEqual(t, first.ID(), second.ID())
	require.Eventually(t, func() bool {
		return onLoop(t, rt, rt.SessionID) == second.ID()
	}, 2*time.Second, 10*time.Millisecond)

	got := onLoop(t, rt, func() []reactive.Status { return append([]reactive.Status(nil), statuses...) })
	assert.Equal(t, reactive.Connecting, got[0])
	assert.Contains(t, got, reactive.Reconnecting)
	assert.Equal(t, reactive.Online, got[len(got)-1])
}

func TestNoReconnectStaysOffline(t *testing.T) {
	sessions := make(chan *session.Session, 4)
	srv := counterServer(t, sessions)
	page := renderPage(t, counterView, "/ws/counter")

	lost := make(chan error, 1)
	rt, err := Boot(strings.NewReader(page), Config{
		View:         counterView,
		Origin:       srv.URL,
		Codec:        codec(),
		Transport:    transport.Options{PingInterval: -1},
		NoReconnect:  true,
		OnDisconnect: func(_ *Runtime, err error) { lost <- err },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-rt.Done()
	}()
	go rt.Run(ctx)

	first := <-sessions
	first.Close(protocol.CloseServerShutdown, "bye")

	select {
	case err := <-lost:
		var pc *transport.PeerCloseError
		require.ErrorAs(t, err, &pc)
		assert.Equal(t, protocol.CloseServerShutdown, pc.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	assert.Equal(t, reactive.Offline, onLoop(t, rt, rt.Store().Status().Peek))
	assert.ErrorIs(t, onLoop(t, rt, func() error { return rt.Send(&increment{}) }), ErrOffline)

	select {
	case <-sessions:
		t.Fatal("runtime reconnected")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	page := renderPage(t, counterView, "")
	var dials atomic.Int32
	rt, err := Boot(strings.NewReader(page), Config{
		View:        counterView,
		Endpoint:    "ws://unused",
		MinBackoff:  time.Millisecond,
		MaxAttempts: 2,
		Dial: func(context.Context, string, transport.Options) (*transport.Channel, error) {
			dials.Add(1)
			return nil, transport.ErrConnectionLost
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-rt.Done()
	}()
	go rt.Run(ctx)

	require.Eventually(t, func() bool {
		return errors.Is(onLoop(t, rt, rt.Err), ErrGaveUp)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, reactive.Offline, onLoop(t, rt, rt.Store().Status().Peek))
}

func TestHeldMessagesFlushAfterWelcome(t *testing.T) {
	sessions := make(chan *session.Session, 1)
	srv := counterServer(t, sessions)
	page := renderPage(t, counterView, "/ws/counter")

	rt, err := Boot(strings.NewReader(page), Config{
		View:      counterView,
		Origin:    srv.URL,
		Codec:     codec(),
		Transport: transport.Options{PingInterval: -1},
		QueueSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, reactive.Connecting, rt.Store().Status().Peek())

	require.NoError(t, rt.Send(&increment{}))
	require.NoError(t, rt.Send(&increment{}))
	assert.ErrorIs(t, rt.Send(&increment{}), ErrQueueFull)
	assert.Equal(t, 2, rt.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-rt.Done()
	}()
	go rt.Run(ctx)
	<-sessions

	span := onLoop(t, rt, func() *dom.Node { return findTag(rt.Document().Root, "span") })
	require.Eventually(t, func() bool {
		return onLoop(t, rt, span.TextContent) == "2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, rt.Pending())
	assert.Equal(t, reactive.Online, onLoop(t, rt, rt.Store().Status().Peek))
}

func TestNoEndpointIsOffline(t *testing.T) {
	page := renderPage(t, counterView, "")
	rt, err := Boot(strings.NewReader(page), Config{View: counterView})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)
	assert.Equal(t, reactive.Offline, onLoop(t, rt, rt.Store().Status().Peek))
	assert.ErrorIs(t, onLoop(t, rt, func() error { return rt.Send(&increment{}) }), ErrOffline)
	cancel()
	<-rt.Done()
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "", StatusText(reactive.Online))
	assert.Equal(t, "Connecting…", StatusText(reactive.Connecting))
	assert.Equal(t, "Offline", StatusText(reactive.Offline))
	assert.Equal(t, "Reconnecting…", StatusText(reactive.Reconnecting))
	assert.NotEmpty(t, StatusText(reactive.ReloadRequired))
}
