package protocol

import "encoding/binary"

const (
	// MaxLength bounds any length prefix read from the wire (4MB). A peer
	// cannot make the decoder allocate more than this for one value.
	MaxLength = 4 << 20

	// MaxVarintLen is the longest varint the decoder accepts.
	MaxVarintLen = binary.MaxVarintLen64
)

// Decoder reads wire values from a byte slice. Every failure is a
// *DecodeError so callers can classify it without inspecting the cause.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// EOF reports whether every byte has been read.
func (d *Decoder) EOF() bool { return d.pos >= len(d.buf) }

// take returns the next n bytes without copying.
func (d *Decoder) take(n int, field string) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, truncated(field)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadUint8 reads one byte.
func (d *Decoder) ReadUint8() (uint8, error) {
	b, err := d.take(1, "uint8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a boolean. Bytes other than 0x00 and 0x01 are Malformed.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.take(1, "bool")
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, &DecodeError{Kind: Malformed, Field: "bool", Err: ErrInvalidBool}
}

// ReadUvarint reads a base-128 varint. More than MaxVarintLen bytes, or a
// value past 64 bits, is Malformed.
func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	switch {
	case n > 0:
		d.pos += n
		return v, nil
	case n == 0:
		return 0, truncated("varint")
	default:
		return 0, &DecodeError{Kind: Malformed, Field: "varint", Err: ErrVarintOverflow}
	}
}

// ReadSvarint reads a zigzag encoded varint.
func (d *Decoder) ReadSvarint() (int64, error) {
	uv, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int64(uv>>1) ^ -int64(uv&1), nil
}

// ReadUint64 reads eight big-endian bytes.
func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// readLength reads a length prefix. A prefix over MaxLength is Malformed;
// one past the end of the input is Truncated.
func (d *Decoder) readLength(field string) (int, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > MaxLength {
		return 0, &DecodeError{Kind: Malformed, Field: field, Err: ErrAllocationTooLarge}
	}
	if n > uint64(d.Remaining()) {
		return 0, truncated(field)
	}
	return int(n), nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.readLength("string")
	if err != nil {
		return "", err
	}
	b, _ := d.take(n, "string")
	return string(b), nil
}

// ReadLenBytes reads length-prefixed bytes into a new slice the caller
// may keep.
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	n, err := d.readLength("bytes")
	if err != nil {
		return nil, err
	}
	b, _ := d.take(n, "bytes")
	return append([]byte(nil), b...), nil
}
