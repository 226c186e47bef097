package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || r.Host == "" {
		return false
	}
	return u.Host == r.Host
}

// NewUpgrader returns the upgrader Accept uses when given nil.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
	}
}

// Accept upgrades an HTTP request and wraps the connection. The caller
// sets any Handler in opts and calls Start.
func Accept(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, opts Options) (*Channel, error) {
	if up == nil {
		up = NewUpgrader()
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return New(conn, opts), nil
}

// DialTimeout bounds the WebSocket handshake in Dial.
const DialTimeout = 10 * time.Second

// Dial connects to a WebSocket endpoint. Dial failures are connection
// losses so callers can retry them like a dropped channel.
func Dial(ctx context.Context, endpoint string, opts Options) (*Channel, error) {
	d := websocket.Dialer{
		HandshakeTimeout: DialTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	conn, resp, err := d.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %s: %w", ErrConnectionLost, endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionLost, endpoint, err)
	}
	return New(conn, opts), nil
}
