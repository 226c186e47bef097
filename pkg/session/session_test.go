package session

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/transport"
)

// increment is an application message used by the tests.
type increment struct{ By uint64 }

const tagIncrement = protocol.FirstAppTag + 1

func (*increment) Tag() protocol.Tag { return tagIncrement }
func (m *increment) EncodeTo(e *protocol.Encoder) { e.WriteUvarint(m.By) }
func (m *increment) DecodeFrom(d *protocol.Decoder) (err error) {
	m.By, err = d.ReadUvarint()
	return err
}

func testCodec() *protocol.Codec {
	reg := protocol.NewRegistry()
	reg.MustRegister(tagIncrement, "Increment", func() protocol.Message { return &increment{} })
	return protocol.NewCodec(reg)
}

// counterHandler keeps a synced "count" cell the peer may also write.
type counterHandler struct {
	count     *reactive.Cell[int]
	status    reactive.Status // at mount
	received  []protocol.Message
	unmounted chan struct{}
}

func newCounterHandler() *counterHandler {
	return &counterHandler{unmounted: make(chan struct{})}
}

func (h *counterHandler) Mount(s *Session) {
	h.status = s.Store().Status().Peek()
	h.count = reactive.New(s.Store(), "count", 0)
	s.Accept("count")
	if err := s.Sync("count"); err != nil {
		s.Logger().Error("sync failed", "error", err)
	}
}

func (h *counterHandler) Receive(s *Session, m protocol.Message) {
	h.received = append(h.received, m)
	if inc, ok := m.(*increment); ok {
		h.count.Update(func(n int) int { return n + int(inc.By) })
	}
}

func (h *counterHandler) Unmount(*Session) { close(h.unmounted) }

func serve(t *testing.T, h Handler, sessions chan<- *Session) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Accept(w, r, h, Config{
			App:       "test",
			Transport: transport.Options{Codec: testCodec(), PingInterval: -1},
		})
		if err != nil {
			return
		}
		sessions <- s
		s.Start()
		<-s.Done()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) (*transport.Channel, chan protocol.Message) {
	t.Helper()
	recv := make(chan protocol.Message, 16)
	c, err := transport.Dial(context.Background(), url, transport.Options{
		Codec:        testCodec(),
		PingInterval: -1,
		Handler:      func(m protocol.Message) { recv <- m },
	})
	require.NoError(t, err)
	c.Start()
	return c, recv
}

func next(t *testing.T, recv <-chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case m := <-recv:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestSessionSyncsState(t *testing.T) {
	h := newCounterHandler()
	sessions := make(chan *Session, 1)
	c, recv := dial(t, serve(t, h, sessions))
	s := <-sessions

	welcome, ok := next(t, recv).(*protocol.Welcome)
	require.True(t, ok)
	assert.Equal(t, s.ID(), welcome.SessionID)
	assert.Equal(t, &protocol.StateUpdate{Key: "count", Value: []byte("0")}, next(t, recv))

	require.NoError(t, c.Send(&increment{By: 1}))
	assert.Equal(t, &protocol.StateUpdate{Key: "count", Value: []byte("1")}, next(t, recv))

	// A peer write is applied without being echoed back.
	require.NoError(t, c.Send(&protocol.StateUpdate{Key: "count", Value: []byte("10")}))
	require.NoError(t, c.Send(&increment{By: 1}))
	assert.Equal(t, &protocol.StateUpdate{Key: "count", Value: []byte("11")}, next(t, recv))

	require.NoError(t, c.Close(protocol.CloseNormal, ""))
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	<-h.unmounted
	assert.Equal(t, reactive.Online, h.status)
	assert.True(t, s.Store().Disposed())
	assert.Equal(t, uint64(3), s.Messages())
	assert.Len(t, h.received, 2)
	assert.Error(t, s.Context().Err())
}

func TestUnacceptedStateUpdateGoesToHandler(t *testing.T) {
	var got []string
	done := make(chan struct{})
	h := Funcs{
		OnReceive: func(_ *Session, m protocol.Message) {
			got = append(got, m.(*protocol.StateUpdate).Key)
			if len(got) == 2 {
				close(done)
			}
		},
	}
	sessions := make(chan *Session, 1)
	c, recv := dial(t, serve(t, h, sessions))
	<-sessions
	next(t, recv)

	require.NoError(t, c.Send(&protocol.StateUpdate{Key: "a"}))
	require.NoError(t, c.Send(&protocol.StateUpdate{Key: "b"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	assert.Equal(t, []string{"a", "b"}, got)
	c.Close(protocol.CloseNormal, "")
}

func TestHandlerPanicClosesSession(t *testing.T) {
	h := Funcs{OnReceive: func(*Session, protocol.Message) { panic("boom") }}
	sessions := make(chan *Session, 1)
	c, recv := dial(t, serve(t, h, sessions))
	s := <-sessions
	next(t, recv)

	require.NoError(t, c.Send(&increment{By: 1}))
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client channel did not close")
	}
	var pce *transport.PeerCloseError
	require.ErrorAs(t, c.Err(), &pce)
	assert.Equal(t, protocol.CloseError, pce.Reason)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
}

func TestDispatchRunsOnLoop(t *testing.T) {
	s := newTestSession("1.1.1.1", "test")
	s.Start()
	defer s.Close(protocol.CloseNormal, "")

	cell := make(chan int, 1)
	require.NoError(t, s.Dispatch(func() {
		c := reactive.New(s.Store(), "n", 41)
		c.Set(c.Peek() + 1)
		cell <- c.Peek()
	}))
	assert.Equal(t, 42, <-cell)

	s.Close(protocol.CloseNormal, "")
	<-s.Done()
	assert.ErrorIs(t, s.Dispatch(func() {}), ErrSessionClosed)
}

// idleConn reads nothing until closed and discards writes.
type idleConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *idleConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, net.ErrClosed
}

func (c *idleConn) WriteMessage(int, []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
		return nil
	}
}

func (c *idleConn) SetReadDeadline(time.Time) error { return nil }
func (c *idleConn) SetWriteDeadline(time.Time) error { return nil }
func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func newTestSession(ip, app string) *Session {
	s := newSession(Funcs{}, Config{App: app}, ip)
	s.ch = transport.New(&idleConn{closed: make(chan struct{})},
		s.transportOptions(transport.Options{PingInterval: -1, ReadTimeout: -1}))
	return s
}
