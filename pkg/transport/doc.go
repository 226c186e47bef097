// Package transport carries protocol frames over a message-oriented
// connection such as a WebSocket.
//
// A Channel owns one connection. A single writer goroutine drains an ordered
// outbound queue and a single reader goroutine decodes inbound frames and
// hands their messages to the Handler in arrival order. Every frame carries
// a sequence number; a frame that is not the successor of the previous one
// is a gap and closes the channel, as does any decode failure. Both are
// fatal to that connection only.
//
// Unexpected loss of the underlying socket is reported separately as
// ErrConnectionLost so that clients can reconnect with a fresh session.
package transport
