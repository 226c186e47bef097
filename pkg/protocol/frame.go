package protocol

import (
	"fmt"
	"sync"
)

// Frame is one transport unit: a sequence number and one message.
// Exactly one frame travels in each WebSocket binary message.
type Frame struct {
	Seq     uint64
	Message Message
}

// EncodeFrame encodes seq followed by the message envelope.
func (c *Codec) EncodeFrame(seq uint64, m Message) []byte {
	e := NewEncoder()
	e.WriteFrame(seq, m)
	return e.Bytes()
}

// DecodeFrame decodes a frame. The buffer must hold exactly one frame.
func (c *Codec) DecodeFrame(data []byte) (*Frame, error) {
	d := NewDecoder(data)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	m, err := c.DecodeFrom(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, &DecodeError{
			Kind:  LengthMismatch,
			Tag:   uint64(m.Tag()),
			Field: "frame",
			Err:   fmt.Errorf("%d trailing bytes", d.Remaining()),
		}
	}
	return &Frame{Seq: seq, Message: m}, nil
}

// Sequencer assigns outbound sequence numbers and validates inbound ones.
// Sequences start at 1 for every new connection.
type Sequencer struct {
	mu   sync.Mutex
	sent uint64
	recv uint64
}

// Next returns the next outbound sequence number.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return s.sent
}

// Accept validates an inbound sequence number. Anything other than the
// successor of the last accepted number is a gap and is not accepted.
func (s *Sequencer) Accept(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.recv+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, seq, s.recv+1)
	}
	s.recv = seq
	return nil
}

// LastReceived returns the last accepted inbound sequence number.
func (s *Sequencer) LastReceived() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recv
}
