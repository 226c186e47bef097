package protocol

import "encoding/binary"

// Encoder appends wire values to a growing buffer. Writes never fail.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder sized for a typical frame.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded bytes. The slice aliases the encoder's buffer
// until the next write.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

// WriteFrame appends seq followed by the envelope of m.
func (e *Encoder) WriteFrame(seq uint64, m Message) {
	e.WriteUvarint(seq)
	e.WriteEnvelope(m)
}

// WriteEnvelope appends the tag of m, the payload length and the payload.
// The payload is encoded in place and shifted once its length is known,
// so no second buffer is needed.
func (e *Encoder) WriteEnvelope(m Message) {
	e.WriteUvarint(uint64(m.Tag()))
	start := len(e.buf)
	m.EncodeTo(e)
	n := len(e.buf) - start

	var prefix [binary.MaxVarintLen64]byte
	k := binary.PutUvarint(prefix[:], uint64(n))
	e.buf = append(e.buf, prefix[:k]...)
	copy(e.buf[start+k:], e.buf[start:start+n])
	copy(e.buf[start:], prefix[:k])
}

// WriteUint8 appends one byte.
func (e *Encoder) WriteUint8(v uint8) { e.buf = append(e.buf, v) }

// WriteBool appends 0x01 for true and 0x00 for false.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
		return
	}
	e.WriteUint8(0)
}

// WriteUvarint appends v as a base-128 varint.
func (e *Encoder) WriteUvarint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }

// WriteSvarint appends v zigzag encoded, so small negatives stay short.
func (e *Encoder) WriteSvarint(v int64) { e.WriteUvarint(uint64(v<<1) ^ uint64(v>>63)) }

// WriteUint64 appends v as eight big-endian bytes. Ping timestamps use it.
func (e *Encoder) WriteUint64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

// WriteString appends a varint length followed by the bytes of s.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteLenBytes appends a varint length followed by b.
func (e *Encoder) WriteLenBytes(b []byte) {
	e.WriteUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}
