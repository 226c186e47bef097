package transport

import (
	"errors"
	"fmt"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

var (
	// ErrClosed is returned when sending on a channel that is not open.
	ErrClosed = errors.New("transport: channel closed")

	// ErrConnectionLost wraps the socket error when a connection drops
	// without an orderly close.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrRateLimited is the close cause when a peer exceeds the inbound
	// message rate.
	ErrRateLimited = errors.New("transport: inbound rate exceeded")

	// ErrUnexpectedFrame is the close cause for a non-binary frame.
	ErrUnexpectedFrame = errors.New("transport: unexpected non-binary frame")

	// ErrNoSender is returned by Emit when the store has no sender.
	ErrNoSender = errors.New("transport: no sender bound to store")
)

// PeerCloseError reports a close the peer initiated with a reason other
// than normal or going away.
type PeerCloseError struct {
	Reason  protocol.CloseReason
	Message string
}

func (e *PeerCloseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transport: peer closed: %s", e.Reason)
	}
	return fmt.Sprintf("transport: peer closed: %s: %s", e.Reason, e.Message)
}

// IsConnectionLost reports whether err is a connection loss.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}
