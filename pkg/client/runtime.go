package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vango-dev/isomorph/pkg/dom"
	"github.com/vango-dev/isomorph/pkg/hydrate"
	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/render"
	"github.com/vango-dev/isomorph/pkg/transport"
	"github.com/vango-dev/isomorph/pkg/view"
)

var (
	// ErrNoRoot is returned when the page has no application root.
	ErrNoRoot = errors.New("client: page has no application root")

	// ErrNoEndpoint is returned when neither the config nor the page names
	// a socket endpoint.
	ErrNoEndpoint = errors.New("client: no socket endpoint")

	// ErrGaveUp is reported when MaxAttempts consecutive dials failed.
	ErrGaveUp = errors.New("client: reconnect attempts exhausted")

	// ErrOffline is returned by Send once the page will not connect again.
	ErrOffline = errors.New("client: offline")

	// ErrQueueFull is returned by Send when QueueSize messages are already
	// waiting for a connection.
	ErrQueueFull = errors.New("client: send queue full")
)

// ReloadID is the element ID of the prompt Boot inserts when the page
// cannot be hydrated.
const ReloadID = "__reload"

// DialFunc opens a channel. transport.Dial is the default.
type DialFunc func(ctx context.Context, endpoint string, opts transport.Options) (*transport.Channel, error)

// Config configures a Runtime.
type Config struct {
	View view.View

	// Endpoint is the socket URL. When empty the page's data-ws attribute
	// is resolved against Origin.
	Endpoint string
	Origin   string

	Codec  *protocol.Codec
	Logger *slog.Logger

	// OnMessage handles application messages on the event loop.
	OnMessage func(rt *Runtime, m protocol.Message)

	// OnConnect runs on the event loop after each Welcome.
	OnConnect func(rt *Runtime)

	// OnDisconnect runs on the event loop when an open connection ends.
	OnDisconnect func(rt *Runtime, err error)

	// NoReconnect leaves the page Offline after the first disconnect.
	// Applications whose server state cannot survive a new session set it.
	NoReconnect bool

	Transport transport.Options
	Dial      DialFunc

	MinBackoff  time.Duration // Default 250ms
	MaxBackoff  time.Duration // Default 10s
	MaxAttempts int           // Consecutive failed dials before giving up; 0 retries forever

	// QueueSize bounds both the event loop queue and the messages held
	// for the next connection.
	QueueSize int
}

func (c *Config) defaults() {
	if c.Codec == nil {
		c.Codec = protocol.NewCodec(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dial == nil {
		c.Dial = transport.Dial
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = 10 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Runtime is one hydrated page and its connection.
type Runtime struct {
	cfg    Config
	logger *slog.Logger

	doc  *dom.Document
	st   *reactive.Store
	root *hydrate.Root

	endpoint string
	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once

	// Loop-owned.
	gen       int
	attempt   int
	timer     *time.Timer
	sessionID string
	synced    []string
	applying  string
	lastErr   error
	stopping  bool

	// chMu guards the connection and the messages waiting for it.
	chMu    sync.Mutex
	ch      *transport.Channel
	ready   bool // Welcome received on ch
	offline bool
	pending []protocol.Message
}

// Boot parses page, restores its snapshot and hydrates the application
// root with cfg.View.
//
// On a structural mismatch Boot returns the runtime together with the
// *hydrate.MismatchError. The runtime is then in the ReloadRequired state:
// the container starts with a reload prompt, Run does not connect and Send
// fails with ErrOffline.
func Boot(page io.Reader, cfg Config) (*Runtime, error) {
	cfg.defaults()
	doc, err := dom.Parse(page)
	if err != nil {
		return nil, err
	}
	container := doc.GetElementByID(render.RootID)
	if container == nil {
		return nil, ErrNoRoot
	}

	rt := &Runtime{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "client"),
		doc:    doc,
		st:     reactive.NewStore(reactive.WithLogger(cfg.Logger)),
		tasks:  make(chan func(), cfg.QueueSize),
		done:   make(chan struct{}),
	}
	transport.WithSender(rt.st, rt)

	if state := doc.GetElementByID(render.StateID); state != nil {
		snap, err := reactive.ParseSnapshot([]byte(state.TextContent()))
		if err != nil {
			return nil, fmt.Errorf("client: state snapshot: %w", err)
		}
		if err := rt.st.Restore(snap); err != nil {
			return nil, fmt.Errorf("client: restore: %w", err)
		}
	}

	rt.endpoint = cfg.Endpoint
	if rt.endpoint == "" {
		if ws, ok := container.Attr("data-ws"); ok && ws != "" {
			if rt.endpoint, err = resolveEndpoint(cfg.Origin, ws); err != nil {
				return nil, err
			}
		}
	}

	rt.root, err = hydrate.Hydrate(rt.st, container, cfg.View, hydrate.Options{Logger: cfg.Logger})
	if hydrate.IsMismatch(err) {
		rt.offline = true
		rt.st.SetStatus(reactive.ReloadRequired)
		rt.promptReload(container)
		return rt, err
	}
	if err != nil {
		rt.st.Dispose()
		return nil, err
	}
	return rt, nil
}

// promptReload puts a reload prompt in front of the stale markup.
func (rt *Runtime) promptReload(container *dom.Node) {
	p := rt.doc.CreateElement("p")
	p.SetAttr("id", ReloadID)
	p.SetAttr("class", "status reload")
	p.SetAttr("role", "alert")
	p.AppendChild(rt.doc.CreateText(StatusText(reactive.ReloadRequired) + " "))
	a := rt.doc.CreateElement("a")
	a.SetAttr("href", "")
	a.AppendChild(rt.doc.CreateText("Reload"))
	p.AppendChild(a)
	container.InsertBefore(p, container.FirstChild)
}

// resolveEndpoint resolves ref against origin and switches to a ws scheme.
func resolveEndpoint(origin, ref string) (string, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("client: origin: %w", err)
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("client: endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: %q", ErrNoEndpoint, u.String())
	}
	return u.String(), nil
}

// Document returns the live document.
func (rt *Runtime) Document() *dom.Document { return rt.doc }

// Store returns the page store. Use it only on the event loop.
func (rt *Runtime) Store() *reactive.Store { return rt.st }

// Root returns the hydrated root.
func (rt *Runtime) Root() *hydrate.Root { return rt.root }

// Endpoint returns the socket URL the runtime dials.
func (rt *Runtime) Endpoint() string { return rt.endpoint }

// SessionID returns the ID of the current server session. Loop only.
func (rt *Runtime) SessionID() string { return rt.sessionID }

// Err returns the last connection error. Loop only.
func (rt *Runtime) Err() error { return rt.lastErr }

// Done is closed when Run has returned and the page is torn down.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

// Post queues fn for the event loop. It reports false once the runtime
// has stopped.
func (rt *Runtime) Post(fn func()) bool {
	select {
	case <-rt.done:
		return false
	default:
	}
	select {
	case rt.tasks <- fn:
		return true
	case <-rt.done:
		return false
	}
}

// Dispatch delivers a document event to target on the event loop.
func (rt *Runtime) Dispatch(target *dom.Node, ev dom.Event) bool {
	return rt.Post(func() { target.Dispatch(ev) })
}

// Send delivers m on the current connection. Until the connection has
// been welcomed, and while reconnecting, m is held and sent in order right
// after the next Welcome. Send fails with ErrOffline once the page will
// not connect again.
func (rt *Runtime) Send(m protocol.Message) error {
	rt.chMu.Lock()
	defer rt.chMu.Unlock()
	if rt.offline {
		return ErrOffline
	}
	if rt.ready {
		err := rt.ch.Send(m)
		if !errors.Is(err, transport.ErrClosed) {
			return err
		}
		// The channel is going away; the close callback has not run yet.
		rt.ready = false
	}
	if len(rt.pending) >= rt.cfg.QueueSize {
		return ErrQueueFull
	}
	rt.pending = append(rt.pending, m)
	return nil
}

// Pending returns the number of messages waiting for a connection.
func (rt *Runtime) Pending() int {
	rt.chMu.Lock()
	defer rt.chMu.Unlock()
	return len(rt.pending)
}

// Sync pushes each key to the server whenever its cell changes locally,
// and its current value after every connect. Updates the server sent are
// not echoed. Loop only.
func (rt *Runtime) Sync(keys ...string) error {
	for _, key := range keys {
		if _, err := rt.st.Encode(key); err != nil {
			return err
		}
		rt.synced = append(rt.synced, key)
		first := true
		rt.st.Effect(func() {
			raw, err := rt.st.Watch(key)
			if err != nil || first || rt.applying == key {
				first = false
				return
			}
			if err := rt.Send(&protocol.StateUpdate{Key: key, Value: raw}); err != nil {
				rt.logger.Debug("state update not sent", "key", key, "error", err)
			}
		})
	}
	return nil
}

// Run drives the event loop until ctx ends, then closes the connection
// and disposes the page. It connects immediately when an endpoint is
// known.
func (rt *Runtime) Run(ctx context.Context) error {
	defer rt.shutdown()
	switch {
	case rt.st.Status().Peek() == reactive.ReloadRequired:
	case rt.endpoint == "":
		rt.goOffline(reactive.Offline, nil)
	default:
		rt.connect(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-rt.tasks:
			rt.run(fn)
		}
	}
}

func (rt *Runtime) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("event loop panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := reactive.Guard(fn); err != nil {
		rt.logger.Error("store contract violation", "error", err)
	}
}

func (rt *Runtime) connect(ctx context.Context) {
	rt.gen++
	gen := rt.gen
	opts := rt.cfg.Transport
	opts.Codec = rt.cfg.Codec
	if opts.Logger == nil {
		opts.Logger = rt.cfg.Logger
	}
	opts.Handler = func(m protocol.Message) {
		rt.Post(func() { rt.receive(gen, m) })
	}
	opts.OnClose = func(err error) {
		rt.Post(func() { rt.closed(ctx, gen, err) })
	}

	go func() {
		ch, err := rt.cfg.Dial(ctx, rt.endpoint, opts)
		rt.Post(func() {
			if err != nil {
				rt.retry(ctx, err)
				return
			}
			rt.attach(ctx, gen, ch)
		})
	}()
}

func (rt *Runtime) attach(ctx context.Context, gen int, ch *transport.Channel) {
	if gen != rt.gen || ctx.Err() != nil {
		_ = ch.Close(protocol.CloseGoingAway, "")
		return
	}
	rt.chMu.Lock()
	rt.ch = ch
	rt.chMu.Unlock()
	ch.Start()
	rt.logger.Debug("connected", "endpoint", rt.endpoint)
}

func (rt *Runtime) receive(gen int, m protocol.Message) {
	if gen != rt.gen {
		return
	}
	switch m := m.(type) {
	case *protocol.Welcome:
		rt.sessionID = m.SessionID
		rt.attempt = 0
		rt.lastErr = nil
		rt.flush()
		rt.st.SetStatus(reactive.Online)
		if rt.cfg.OnConnect != nil {
			rt.cfg.OnConnect(rt)
		}
	case *protocol.StateUpdate:
		rt.applying = m.Key
		err := rt.st.Apply(m.Key, m.Value)
		rt.applying = ""
		if err != nil {
			rt.logger.Warn("rejected state update", "key", m.Key, "error", err)
		}
	default:
		if rt.cfg.OnMessage != nil {
			rt.cfg.OnMessage(rt, m)
		}
	}
}

// flush sends the synced keys and then every held message on the
// welcomed connection. Messages the channel refuses stay held.
func (rt *Runtime) flush() {
	rt.chMu.Lock()
	defer rt.chMu.Unlock()
	if rt.ch == nil {
		return
	}
	for _, key := range rt.synced {
		raw, err := rt.st.Encode(key)
		if err != nil {
			continue
		}
		if err := rt.ch.Send(&protocol.StateUpdate{Key: key, Value: raw}); err != nil {
			rt.logger.Debug("flush interrupted", "error", err)
			return
		}
	}
	for len(rt.pending) > 0 {
		if err := rt.ch.Send(rt.pending[0]); err != nil {
			rt.logger.Debug("flush interrupted", "held", len(rt.pending), "error", err)
			return
		}
		rt.pending = rt.pending[1:]
	}
	rt.pending = nil
	rt.ready = true
}

// goOffline stops accepting messages, drops the held ones and sets s.
func (rt *Runtime) goOffline(s reactive.Status, err error) {
	rt.chMu.Lock()
	dropped := len(rt.pending)
	rt.offline, rt.ready, rt.pending = true, false, nil
	rt.chMu.Unlock()
	if dropped > 0 {
		rt.logger.Warn("discarded unsent messages", "count", dropped, "error", err)
	}
	rt.st.SetStatus(s)
}

func (rt *Runtime) closed(ctx context.Context, gen int, err error) {
	if gen != rt.gen || rt.stopping {
		return
	}
	rt.chMu.Lock()
	rt.ch = nil
	rt.ready = false
	rt.chMu.Unlock()
	rt.sessionID = ""
	if err == nil {
		err = transport.ErrClosed
	}
	rt.logger.Info("connection closed", "error", err)
	if rt.cfg.OnDisconnect != nil {
		rt.cfg.OnDisconnect(rt, err)
	}
	if rt.cfg.NoReconnect {
		rt.lastErr = err
		rt.goOffline(reactive.Offline, err)
		return
	}
	rt.retry(ctx, err)
}

// retry schedules the next dial with exponential backoff.
func (rt *Runtime) retry(ctx context.Context, err error) {
	if ctx.Err() != nil || rt.stopping {
		return
	}
	rt.lastErr = err
	rt.attempt++
	if rt.cfg.MaxAttempts > 0 && rt.attempt > rt.cfg.MaxAttempts {
		rt.lastErr = fmt.Errorf("%w: %w", ErrGaveUp, err)
		rt.goOffline(reactive.Offline, rt.lastErr)
		rt.logger.Warn("giving up", "attempts", rt.attempt-1, "error", err)
		return
	}
	rt.st.SetStatus(reactive.Reconnecting)

	delay := Backoff(rt.cfg.MinBackoff, rt.cfg.MaxBackoff, rt.attempt)
	rt.logger.Debug("reconnecting", "attempt", rt.attempt, "delay", delay)
	rt.timer = time.AfterFunc(delay, func() {
		rt.Post(func() { rt.connect(ctx) })
	})
}

// Backoff returns min doubled attempt-1 times, capped at max.
func Backoff(min, max time.Duration, attempt int) time.Duration {
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

func (rt *Runtime) shutdown() {
	rt.stopping = true
	if rt.timer != nil {
		rt.timer.Stop()
	}
	rt.chMu.Lock()
	ch := rt.ch
	rt.ch = nil
	rt.offline, rt.ready, rt.pending = true, false, nil
	rt.chMu.Unlock()
	if ch != nil {
		_ = ch.Close(protocol.CloseGoingAway, "page closed")
	}
	rt.doneOnce.Do(func() { close(rt.done) })
	if rt.root != nil {
		rt.root.Dispose()
	}
	rt.st.Dispose()
}

// StatusText is the indicator text for a connection status. Online has
// none.
func StatusText(s reactive.Status) string {
	switch s {
	case reactive.Online:
		return ""
	case reactive.Connecting:
		return "Connecting…"
	case reactive.Reconnecting:
		return "Reconnecting…"
	case reactive.Offline:
		return "Offline"
	case reactive.ReloadRequired:
		return "This page is out of date."
	default:
		return s.String()
	}
}
