package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

// Conn is a message-oriented connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// controlWriter is implemented by connections that can send a close frame.
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// readLimiter is implemented by connections that can cap inbound frames.
type readLimiter interface {
	SetReadLimit(limit int64)
}

// State is the lifecycle state of a Channel.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Handler receives inbound application messages. It runs on the reader
// goroutine; a slow handler applies backpressure to the peer.
type Handler func(m protocol.Message)

// Observer receives per-message counters, typically for metrics.
type Observer interface {
	MessageReceived(tag protocol.Tag, size int)
	MessageSent(tag protocol.Tag, size int)
	ProtocolError(err error)
}

// Defaults for Options fields left zero.
const (
	DefaultQueueSize      = 256
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultMaxMessageSize = 64 * 1024
)

// Options configures a Channel.
type Options struct {
	Codec   *protocol.Codec
	Logger  *slog.Logger
	Handler Handler

	// OnLost is called once when the connection drops unexpectedly.
	OnLost func(err error)

	// OnClose is called once when the channel reaches Closed, with the
	// cause or nil for an orderly close.
	OnClose func(err error)

	Observer Observer

	QueueSize      int
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration // Negative disables the read deadline
	PingInterval   time.Duration // Negative disables heartbeats
	MaxMessageSize int64

	// RateLimit caps inbound messages per second. Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
}

func (o *Options) defaults() {
	if o.Codec == nil {
		o.Codec = protocol.NewCodec(nil)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.PingInterval == 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.RateLimit > 0 && o.RateBurst <= 0 {
		o.RateBurst = int(o.RateLimit) + 1
	}
}

type outFrame struct {
	tag  protocol.Tag
	data []byte
}

// Channel is one bidirectional, ordered message stream.
type Channel struct {
	conn    Conn
	opts    Options
	codec   *protocol.Codec
	logger  *slog.Logger
	limiter *rate.Limiter

	seq   protocol.Sequencer
	state atomic.Int32

	sendMu  sync.Mutex // Orders sequence assignment with enqueueing
	out     chan outFrame
	closing chan struct{}
	done    chan struct{}

	errMu      sync.Mutex
	err        error
	finishOnce sync.Once

	sent atomic.Uint64
	recv atomic.Uint64
}

// New wraps conn. The channel stays in Connecting until Start.
func New(conn Conn, opts Options) *Channel {
	opts.defaults()
	c := &Channel{
		conn:    conn,
		opts:    opts,
		codec:   opts.Codec,
		logger:  opts.Logger.With("component", "transport"),
		out:     make(chan outFrame, opts.QueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(opts.RateLimit, opts.RateBurst)
	}
	if rl, ok := conn.(readLimiter); ok {
		rl.SetReadLimit(opts.MaxMessageSize)
	}
	c.state.Store(int32(Connecting))
	return c
}

// Start opens the channel and starts its goroutines.
func (c *Channel) Start() {
	if !c.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return
	}
	go c.writeLoop()
	go c.readLoop()
	if c.opts.PingInterval > 0 {
		go c.heartbeat()
	}
}

// State returns the channel's lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Done is closed when the channel reaches Closed.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns why the channel closed, or nil for an orderly close or a
// channel that is still open.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Codec returns the channel's codec.
func (c *Channel) Codec() *protocol.Codec { return c.codec }

// Sent returns the number of frames written.
func (c *Channel) Sent() uint64 { return c.sent.Load() }

// Received returns the number of frames accepted.
func (c *Channel) Received() uint64 { return c.recv.Load() }

// Send queues m. Messages are written in the order Send is called. Send
// blocks while the queue is full.
func (c *Channel) Send(m protocol.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.State() != Open {
		return ErrClosed
	}
	f := outFrame{tag: m.Tag(), data: c.codec.EncodeFrame(c.seq.Next(), m)}
	select {
	case c.out <- f:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close sends a Close message and shuts the channel down once every
// queued message has been written.
func (c *Channel) Close(reason protocol.CloseReason, message string) error {
	return c.closeWith(reason, message, nil)
}

func (c *Channel) closeWith(reason protocol.CloseReason, message string, cause error) error {
	c.sendMu.Lock()
	switch c.State() {
	case Connecting:
		c.sendMu.Unlock()
		c.finish(cause)
		return nil
	case Open:
	default:
		c.sendMu.Unlock()
		return ErrClosed
	}

	c.setErr(cause)
	c.state.Store(int32(Closing))
	f := outFrame{
		tag:  protocol.TagClose,
		data: c.codec.EncodeFrame(c.seq.Next(), &protocol.Close{Reason: reason, Message: message}),
	}
	select {
	case c.out <- f:
	default:
		c.logger.Warn("outbound queue full, closing without close message")
	}
	c.sendMu.Unlock()

	close(c.closing)
	return nil
}

func (c *Channel) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// finish moves the channel to Closed exactly once.
func (c *Channel) finish(cause error) {
	c.finishOnce.Do(func() {
		c.setErr(cause)
		err := c.Err()

		c.state.Store(int32(Closed))
		close(c.done)
		c.conn.Close()

		switch {
		case err == nil:
			c.logger.Debug("channel closed", "sent", c.sent.Load(), "received", c.recv.Load())
		case IsConnectionLost(err):
			c.logger.Info("connection lost", "error", err)
		default:
			c.logger.Warn("channel closed with error", "error", err)
		}

		if err != nil && IsConnectionLost(err) && c.opts.OnLost != nil {
			c.opts.OnLost(err)
		}
		if c.opts.OnClose != nil {
			c.opts.OnClose(err)
		}
	})
}

func (c *Channel) writeLoop() {
	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				c.finish(fmt.Errorf("%w: %w", ErrConnectionLost, err))
				return
			}

		case <-c.closing:
			c.drain()
			if cw, ok := c.conn.(controlWriter); ok {
				_ = cw.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
			}
			c.finish(nil)
			return

		case <-c.done:
			return
		}
	}
}

// drain writes whatever is still queued, stopping at the first failure.
func (c *Channel) drain() {
	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Channel) write(f outFrame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, f.data); err != nil {
		return err
	}
	c.sent.Add(1)
	if c.opts.Observer != nil {
		c.opts.Observer.MessageSent(f.tag, len(f.data))
	}
	return nil
}

func (c *Channel) readLoop() {
	for {
		if c.opts.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.State() == Open {
				c.finish(fmt.Errorf("%w: %w", ErrConnectionLost, err))
			}
			return
		}
		if !c.receive(typ, data) {
			return
		}
	}
}

// receive handles one inbound frame and reports whether to keep reading.
func (c *Channel) receive(typ int, data []byte) bool {
	if typ != websocket.BinaryMessage {
		c.protocolError(protocol.CloseError, ErrUnexpectedFrame)
		return false
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.protocolError(protocol.CloseRateLimited, ErrRateLimited)
		return false
	}

	frame, err := c.codec.DecodeFrame(data)
	if err != nil {
		c.protocolError(protocol.CloseError, err)
		return false
	}
	if err := c.seq.Accept(frame.Seq); err != nil {
		c.protocolError(protocol.CloseError, err)
		return false
	}
	c.recv.Add(1)
	if c.opts.Observer != nil {
		c.opts.Observer.MessageReceived(frame.Message.Tag(), len(data))
	}

	switch m := frame.Message.(type) {
	case *protocol.Ping:
		if err := c.Send(&protocol.Pong{Timestamp: m.Timestamp}); err != nil {
			return false
		}
	case *protocol.Pong:
		rtt := time.Since(time.UnixMilli(int64(m.Timestamp)))
		c.logger.Debug("pong", "rtt", rtt)
	case *protocol.Close:
		var cause error
		if m.Reason != protocol.CloseNormal && m.Reason != protocol.CloseGoingAway {
			cause = &PeerCloseError{Reason: m.Reason, Message: m.Message}
		}
		c.finish(cause)
		return false
	default:
		if c.opts.Handler != nil {
			c.opts.Handler(m)
		}
	}
	return true
}

func (c *Channel) protocolError(reason protocol.CloseReason, err error) {
	if c.opts.Observer != nil {
		c.opts.Observer.ProtocolError(err)
	}
	if closeErr := c.closeWith(reason, err.Error(), err); errors.Is(closeErr, ErrClosed) {
		c.finish(err)
	}
}

func (c *Channel) heartbeat() {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.Send(&protocol.Ping{Timestamp: uint64(time.Now().UnixMilli())}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
