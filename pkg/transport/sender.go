package transport

import (
	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
)

// Sender queues a message for the peer.
type Sender interface {
	Send(m protocol.Message) error
}

type senderKey struct{}

// WithSender binds s to st so view handlers can reach the peer.
func WithSender(st *reactive.Store, s Sender) {
	st.SetValue(senderKey{}, s)
}

// SenderFrom returns the sender bound to st, or nil.
func SenderFrom(st *reactive.Store) Sender {
	s, _ := st.Value(senderKey{}).(Sender)
	return s
}

// Emit sends m through the sender bound to st. On the server during an
// initial render no sender is bound and Emit returns ErrNoSender.
func Emit(st *reactive.Store, m protocol.Message) error {
	s := SenderFrom(st)
	if s == nil {
		return ErrNoSender
	}
	return s.Send(m)
}
