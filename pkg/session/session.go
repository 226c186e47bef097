package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/transport"
)

// Handler is the application side of a session. Every method runs on the
// session's event loop.
type Handler interface {
	// Mount runs once, before any inbound message. Cells and effects it
	// creates live until the session closes.
	Mount(s *Session)

	// Receive handles an application message or an inbound state update
	// for a key the session does not accept.
	Receive(s *Session, m protocol.Message)

	// Unmount runs once during teardown, before the store is disposed.
	Unmount(s *Session)
}

// Funcs adapts plain functions to Handler. Nil fields are no-ops.
type Funcs struct {
	OnMount   func(s *Session)
	OnReceive func(s *Session, m protocol.Message)
	OnUnmount func(s *Session)
}

func (f Funcs) Mount(s *Session) {
	if f.OnMount != nil {
		f.OnMount(s)
	}
}

func (f Funcs) Receive(s *Session, m protocol.Message) {
	if f.OnReceive != nil {
		f.OnReceive(s, m)
	}
}

func (f Funcs) Unmount(s *Session) {
	if f.OnUnmount != nil {
		f.OnUnmount(s)
	}
}

// DefaultQueueSize is the event loop queue length.
const DefaultQueueSize = 256

// Config configures a Session.
type Config struct {
	// App names the application for logs and traces.
	App string

	Logger *slog.Logger

	// TracerName names the tracer used for dispatch spans.
	TracerName string

	// Transport is the template for the session's channel. Handler and
	// OnClose are set by the session.
	Transport transport.Options

	// Upgrader is used by Accept. Nil means transport.NewUpgrader().
	Upgrader *websocket.Upgrader

	QueueSize int
}

// Session is one connection's store, channel and event loop.
type Session struct {
	id      string
	ip      string
	app     string
	created time.Time

	ch      *transport.Channel
	st      *reactive.Store
	handler Handler
	logger  *slog.Logger
	base    *slog.Logger // Session attributes without the component
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	tasks     chan func()
	started   atomic.Bool
	mounted   bool
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{} // Closed when teardown has finished

	onClose []func(*Session)
	mu      sync.Mutex

	accept   map[string]bool // Keys clients may write
	applying string          // Key being applied from the peer

	lastActive atomic.Int64
	messages   atomic.Uint64
}

// Accept upgrades r and creates a session for the new connection. The
// caller registers it with a Manager if needed and then calls Start.
func Accept(w http.ResponseWriter, r *http.Request, h Handler, cfg Config) (*Session, error) {
	s := newSession(h, cfg, ClientIP(r))
	ch, err := transport.Accept(w, r, cfg.Upgrader, s.transportOptions(cfg.Transport))
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.ch = ch
	return s, nil
}

// New creates a session over an established connection.
func New(conn transport.Conn, h Handler, cfg Config) *Session {
	s := newSession(h, cfg, "")
	s.ch = transport.New(conn, s.transportOptions(cfg.Transport))
	return s
}

func newSession(h Handler, cfg Config, ip string) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.TracerName == "" {
		cfg.TracerName = "isomorph/session"
	}

	id := uuid.NewString()
	base := cfg.Logger.With("session_id", id, "app", cfg.App)
	logger := base.With("component", "session")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		ip:      ip,
		app:     cfg.App,
		created: time.Now(),
		st:      reactive.NewStore(reactive.WithLogger(logger)),
		handler: h,
		logger:  logger,
		base:    base,
		tracer:  otel.Tracer(cfg.TracerName),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan func(), cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		accept:  make(map[string]bool),
	}
	s.lastActive.Store(s.created.UnixNano())
	transport.WithSender(s.st, s)
	return s
}

func (s *Session) transportOptions(opts transport.Options) transport.Options {
	if opts.Logger == nil {
		opts.Logger = s.base
	}
	opts.Handler = s.enqueue
	opts.OnClose = func(error) { s.shutdown() }
	return opts
}

// ID returns the session's unique ID.
func (s *Session) ID() string { return s.id }

// IP returns the client address the session was accepted from.
func (s *Session) IP() string { return s.ip }

// App returns the application name.
func (s *Session) App() string { return s.app }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.created }

// LastActive returns when the last inbound message was handled.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Messages returns the number of inbound messages handled.
func (s *Session) Messages() uint64 { return s.messages.Load() }

// Store returns the session's store. Use it only on the event loop.
func (s *Session) Store() *reactive.Store { return s.st }

// Channel returns the session's transport channel.
func (s *Session) Channel() *transport.Channel { return s.ch }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} { return s.stopped }

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Start mounts the handler and starts the channel and event loop. The
// first message the peer receives is a Welcome carrying the session ID.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.tasks <- s.mount
	s.ch.Start()
	go s.loop()
}

func (s *Session) mount() {
	if err := s.ch.Send(&protocol.Welcome{SessionID: s.id}); err != nil {
		return
	}
	s.mounted = true
	s.st.SetStatus(reactive.Online)
	s.handler.Mount(s)
	s.logger.Info("session started", "ip", s.ip)
}

// Send queues m for the peer. It is safe from any goroutine.
func (s *Session) Send(m protocol.Message) error {
	return s.ch.Send(m)
}

// Dispatch runs fn on the event loop. It is the way to touch the store
// from other goroutines, such as timers or shared hubs.
func (s *Session) Dispatch(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.tasks <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Accept lets the peer write the given keys with StateUpdate messages.
// Updates for other keys are passed to the handler.
func (s *Session) Accept(keys ...string) {
	for _, k := range keys {
		s.accept[k] = true
	}
}

// Sync pushes a StateUpdate for each key now and whenever its cell
// changes. An update the peer sent is not echoed back. Call it on the event
// loop after the cells exist.
func (s *Session) Sync(keys ...string) error {
	for _, key := range keys {
		if _, err := s.st.Encode(key); err != nil {
			return err
		}
		s.st.Effect(func() {
			raw, err := s.st.Watch(key)
			if err != nil || s.applying == key {
				return
			}
			if err := s.ch.Send(&protocol.StateUpdate{Key: key, Value: raw}); err != nil {
				s.logger.Debug("state update not sent", "key", key, "error", err)
			}
		})
	}
	return nil
}

// OnClose registers fn to run after teardown.
func (s *Session) OnClose(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Close closes the channel with reason and tears the session down.
func (s *Session) Close(reason protocol.CloseReason, message string) {
	_ = s.ch.Close(reason, message)
	s.shutdown()
}

// shutdown signals the event loop to tear down. A session that was never
// started gets a loop just for teardown.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.started.CompareAndSwap(false, true) {
			go s.loop()
		}
	})
}

// enqueue runs on the channel's reader goroutine. Blocking here keeps
// messages in order and applies backpressure to the peer.
func (s *Session) enqueue(m protocol.Message) {
	select {
	case s.tasks <- func() { s.receive(m) }:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer s.teardown()
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.tasks:
			// Teardown wins over queued work.
			select {
			case <-s.done:
				return
			default:
			}
			s.run(fn)
		}
	}
}

// run executes one task, confining panics to the session.
func (s *Session) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panic", "panic", r, "stack", string(debug.Stack()))
			s.Close(protocol.CloseError, "internal error")
		}
	}()
	if err := reactive.Guard(fn); err != nil {
		s.logger.Error("store contract violation", "error", err)
		s.Close(protocol.CloseError, "internal error")
	}
}

func (s *Session) receive(m protocol.Message) {
	s.lastActive.Store(time.Now().UnixNano())
	s.messages.Add(1)

	name := s.ch.Codec().Registry().Name(m.Tag())
	_, span := s.tracer.Start(s.ctx, "session.dispatch", trace.WithAttributes(
		attribute.String("isomorph.app", s.app),
		attribute.String("isomorph.session", s.id),
		attribute.String("isomorph.message", name),
	))
	defer span.End()

	if su, ok := m.(*protocol.StateUpdate); ok && s.accept[su.Key] {
		s.applying = su.Key
		err := s.st.Apply(su.Key, su.Value)
		s.applying = ""
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("rejected state update", "key", su.Key, "error", err)
		}
		return
	}
	s.handler.Receive(s, m)
}

// teardown runs on the event loop once done is closed.
func (s *Session) teardown() {
	defer close(s.stopped)

	s.cancel()
	if s.mounted {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("unmount panic", "panic", r)
				}
			}()
			s.handler.Unmount(s)
		}()
	}
	s.st.Dispose()
	if s.ch.State() == transport.Open {
		_ = s.ch.Close(protocol.CloseGoingAway, "")
	}

	s.mu.Lock()
	callbacks := s.onClose
	s.onClose = nil
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(s)
	}

	s.logger.Info("session closed",
		"messages", s.messages.Load(),
		"duration", time.Since(s.created).Round(time.Millisecond),
		"error", s.ch.Err(),
	)
}

// ClientIP returns the host part of r.RemoteAddr. Proxy headers are the
// router's concern; see chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.app)
}
