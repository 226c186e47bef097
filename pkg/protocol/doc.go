// Package protocol implements the binary message codec shared by the server
// and the client runtime.
//
// Messages are application-defined variants of a tagged union. Both ends of a
// connection build the same Registry; the schema is implicit and never
// negotiated.
//
// # Wire Format
//
// A single WebSocket binary message carries exactly one frame:
//
//	┌───────────────┬───────────────┬───────────────┬──────────────────┐
//	│ Seq (uvarint) │ Tag (uvarint) │ Len (uvarint) │ Payload (Len)    │
//	└───────────────┴───────────────┴───────────────┴──────────────────┘
//
// Seq increases by one per message on a channel and lets the receiver detect
// reordering or loss. Tag selects the variant. Len must match the payload
// exactly; a short buffer is ErrTruncated, a mismatch is ErrLengthMismatch.
//
// # Encoding
//
//   - Varint: compact encoding for small integers (protobuf-style)
//   - ZigZag: signed integers encoded as unsigned varints
//   - Length-prefixed: strings and byte arrays prefixed with varint length
//   - Big-endian: fixed-width integers (uint16, uint32, uint64)
//
// # Reserved Tags
//
// Tags below FirstAppTag are used by the built-in control variants (Ping,
// Pong, Close, Welcome, StateUpdate). Applications register their own
// variants starting at FirstAppTag.
package protocol
