package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

// memConn is an in-memory Conn. Frames pushed on in are read in order;
// writes are recorded.
type memConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newMemConn() *memConn {
	return &memConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (m *memConn) ReadMessage() (int, []byte, error) {
	select {
	case b, ok := <-m.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.BinaryMessage, b, nil
	case <-m.closed:
		return 0, nil, net.ErrClosed
	}
}

func (m *memConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-m.closed:
		return net.ErrClosed
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, data)
	return nil
}

func (m *memConn) SetReadDeadline(time.Time) error { return nil }
func (m *memConn) SetWriteDeadline(time.Time) error { return nil }

func (m *memConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// written decodes every frame written so far.
func (m *memConn) written(t *testing.T) []*protocol.Frame {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	c := protocol.NewCodec(nil)
	out := make([]*protocol.Frame, 0, len(m.writes))
	for _, w := range m.writes {
		f, err := c.DecodeFrame(w)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func waitDone(t *testing.T, c *Channel) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
}

func quietOptions() Options {
	return Options{PingInterval: -1, ReadTimeout: -1}
}

func TestHandlerSeesMessagesInOrder(t *testing.T) {
	conn := newMemConn()
	codec := protocol.NewCodec(nil)

	var got []string
	opts := quietOptions()
	opts.Handler = func(m protocol.Message) { got = append(got, m.(*protocol.StateUpdate).Key) }
	c := New(conn, opts)
	c.Start()

	for i, k := range []string{"a", "b", "c"} {
		conn.in <- codec.EncodeFrame(uint64(i+1), &protocol.StateUpdate{Key: k, Value: []byte("1")})
	}
	close(conn.in)
	waitDone(t, c)

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, uint64(3), c.Received())
}

func TestSequenceGapClosesChannel(t *testing.T) {
	conn := newMemConn()
	codec := protocol.NewCodec(nil)

	var got []protocol.Message
	opts := quietOptions()
	opts.Handler = func(m protocol.Message) { got = append(got, m) }
	c := New(conn, opts)
	c.Start()

	// Frame 2 overtakes frame 1.
	conn.in <- codec.EncodeFrame(2, &protocol.StateUpdate{Key: "second"})
	conn.in <- codec.EncodeFrame(1, &protocol.StateUpdate{Key: "first"})
	waitDone(t, c)

	assert.Empty(t, got)
	assert.ErrorIs(t, c.Err(), protocol.ErrSequenceGap)
	assert.Equal(t, Closed, c.State())

	frames := conn.written(t)
	require.Len(t, frames, 1)
	closeMsg, ok := frames[0].Message.(*protocol.Close)
	require.True(t, ok)
	assert.Equal(t, protocol.CloseError, closeMsg.Reason)
}

func TestDecodeErrorClosesChannel(t *testing.T) {
	conn := newMemConn()
	var lost bool
	opts := quietOptions()
	opts.OnLost = func(error) { lost = true }
	c := New(conn, opts)
	c.Start()

	conn.in <- []byte{0x01, 0xFF, 0xFF, 0x03}
	waitDone(t, c)

	assert.True(t, protocol.IsDecodeError(c.Err()))
	assert.False(t, IsConnectionLost(c.Err()))
	assert.False(t, lost)
}

func TestConnectionLoss(t *testing.T) {
	conn := newMemConn()
	lost := make(chan error, 1)
	opts := quietOptions()
	opts.OnLost = func(err error) { lost <- err }
	c := New(conn, opts)
	c.Start()

	close(conn.in)
	waitDone(t, c)

	assert.True(t, IsConnectionLost(c.Err()))
	assert.ErrorIs(t, <-lost, io.EOF)
	assert.ErrorIs(t, c.Send(&protocol.Ping{}), ErrClosed)
}

func TestPingIsAnswered(t *testing.T) {
	conn := newMemConn()
	codec := protocol.NewCodec(nil)
	c := New(conn, quietOptions())
	c.Start()

	conn.in <- codec.EncodeFrame(1, &protocol.Ping{Timestamp: 1234})
	require.Eventually(t, func() bool { return c.Sent() == 1 }, time.Second, 5*time.Millisecond)

	frames := conn.written(t)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, &protocol.Pong{Timestamp: 1234}, frames[0].Message)
	require.NoError(t, c.Close(protocol.CloseNormal, ""))
	waitDone(t, c)
}

func TestRateLimitClosesChannel(t *testing.T) {
	conn := newMemConn()
	codec := protocol.NewCodec(nil)
	opts := quietOptions()
	opts.RateLimit = 1
	opts.RateBurst = 2
	c := New(conn, opts)
	c.Start()

	for i := uint64(1); i <= 3; i++ {
		conn.in <- codec.EncodeFrame(i, &protocol.StateUpdate{Key: "k"})
	}
	waitDone(t, c)

	assert.ErrorIs(t, c.Err(), ErrRateLimited)
	frames := conn.written(t)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1].Message.(*protocol.Close)
	assert.Equal(t, protocol.CloseRateLimited, last.Reason)
}

func TestCloseFlushesQueue(t *testing.T) {
	conn := newMemConn()
	closed := make(chan error, 1)
	opts := quietOptions()
	opts.OnClose = func(err error) { closed <- err }
	c := New(conn, opts)
	c.Start()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Send(&protocol.StateUpdate{Key: "k", Value: []byte{byte(i)}}))
	}
	require.NoError(t, c.Close(protocol.CloseNormal, "bye"))
	waitDone(t, c)

	assert.NoError(t, <-closed)
	assert.NoError(t, c.Err())

	frames := conn.written(t)
	require.Len(t, frames, 11)
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Seq)
	}
	assert.Equal(t, &protocol.Close{Reason: protocol.CloseNormal, Message: "bye"}, frames[10].Message)
	assert.ErrorIs(t, c.Close(protocol.CloseNormal, ""), ErrClosed)
}

func TestPeerCloseWithError(t *testing.T) {
	conn := newMemConn()
	codec := protocol.NewCodec(nil)
	c := New(conn, quietOptions())
	c.Start()

	conn.in <- codec.EncodeFrame(1, &protocol.Close{Reason: protocol.CloseServerShutdown, Message: "restart"})
	waitDone(t, c)

	var pce *PeerCloseError
	require.True(t, errors.As(c.Err(), &pce))
	assert.Equal(t, protocol.CloseServerShutdown, pce.Reason)
	assert.Equal(t, "restart", pce.Message)
}

func TestSendBeforeStart(t *testing.T) {
	c := New(newMemConn(), quietOptions())
	assert.Equal(t, Connecting, c.State())
	assert.ErrorIs(t, c.Send(&protocol.Ping{}), ErrClosed)

	require.NoError(t, c.Close(protocol.CloseNormal, ""))
	assert.Equal(t, Closed, c.State())
}
