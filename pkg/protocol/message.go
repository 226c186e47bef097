package protocol

import (
	"fmt"
	"sort"
	"sync"
)

// Tag identifies a message variant on the wire.
type Tag uint16

// FirstAppTag is the first tag available to application variants.
const FirstAppTag Tag = 0x0100

// Message is one variant of the application's tagged union.
//
// EncodeTo must write the complete payload; DecodeFrom must read exactly the
// bytes EncodeTo wrote. The codec enforces the length match.
type Message interface {
	Tag() Tag
	EncodeTo(e *Encoder)
	DecodeFrom(d *Decoder) error
}

// Registry maps tags to variant constructors. Both ends of a channel must
// register the same variants under the same tags.
type Registry struct {
	mu        sync.RWMutex
	factories map[Tag]func() Message
	names     map[Tag]string
}

// NewRegistry creates a registry preloaded with the built-in variants.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[Tag]func() Message),
		names:     make(map[Tag]string),
	}
	registerBuiltins(r)
	return r
}

// Register adds a variant. The factory must return a fresh zero value whose
// Tag() equals tag.
func (r *Registry) Register(tag Tag, name string, factory func() Message) error {
	if factory == nil {
		return fmt.Errorf("protocol: nil factory for tag 0x%04x", uint16(tag))
	}
	if got := factory().Tag(); got != tag {
		return fmt.Errorf("protocol: factory for %s returns tag 0x%04x, want 0x%04x", name, uint16(got), uint16(tag))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[tag]; exists {
		return fmt.Errorf("%w: 0x%04x (%s)", ErrDuplicateTag, uint16(tag), name)
	}
	r.factories[tag] = factory
	r.names[tag] = name
	return nil
}

// MustRegister is like Register but panics on error. Intended for package
// init and app setup where a duplicate tag is a programming error.
func (r *Registry) MustRegister(tag Tag, name string, factory func() Message) {
	if err := r.Register(tag, name, factory); err != nil {
		panic(err)
	}
}

// Name returns the registered name for a tag, or "Unknown".
func (r *Registry) Name(tag Tag) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.names[tag]; ok {
		return n
	}
	return "Unknown"
}

// Tags returns all registered tags in ascending order.
func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]Tag, 0, len(r.factories))
	for t := range r.factories {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func (r *Registry) lookup(tag Tag) (func() Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[tag]
	return f, ok
}

// Codec encodes and decodes registered messages.
type Codec struct {
	reg *Registry
}

// NewCodec creates a codec over the given registry.
func NewCodec(reg *Registry) *Codec {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Codec{reg: reg}
}

// Registry returns the codec's registry.
func (c *Codec) Registry() *Registry {
	return c.reg
}

// Encode encodes a message envelope: tag, payload length, payload.
func (c *Codec) Encode(m Message) []byte {
	e := NewEncoder()
	e.WriteEnvelope(m)
	return e.Bytes()
}

// Decode decodes exactly one envelope. Trailing bytes are a LengthMismatch.
func (c *Codec) Decode(data []byte) (Message, error) {
	d := NewDecoder(data)
	m, err := c.DecodeFrom(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, &DecodeError{
			Kind:  LengthMismatch,
			Tag:   uint64(m.Tag()),
			Field: "envelope",
			Err:   fmt.Errorf("%d trailing bytes", d.Remaining()),
		}
	}
	return m, nil
}

// DecodeFrom reads one envelope from d.
func (c *Codec) DecodeFrom(d *Decoder) (Message, error) {
	rawTag, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if rawTag > 0xFFFF {
		return nil, &DecodeError{Kind: UnknownVariant, Tag: rawTag, Field: "tag"}
	}
	factory, ok := c.reg.lookup(Tag(rawTag))
	if !ok {
		return nil, &DecodeError{Kind: UnknownVariant, Tag: rawTag, Field: "tag"}
	}

	// A prefix running past the input is reported as Truncated: the bytes
	// cannot tell a cut stream from an overstated length.
	length, err := d.readLength("payload")
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.Tag = rawTag
		}
		return nil, err
	}
	payload, _ := d.take(length, "payload")

	m := factory()
	pd := NewDecoder(payload)
	if err := m.DecodeFrom(pd); err != nil {
		if de, ok := err.(*DecodeError); ok {
			// A payload that runs out inside its own length prefix means the
			// prefix was too short for what the variant expects.
			if de.Kind == Truncated {
				de.Kind = LengthMismatch
			}
			de.Tag = rawTag
			return nil, de
		}
		return nil, &DecodeError{Kind: Malformed, Tag: rawTag, Field: "payload", Err: err}
	}
	if !pd.EOF() {
		return nil, &DecodeError{
			Kind:  LengthMismatch,
			Tag:   rawTag,
			Field: "payload",
			Err:   fmt.Errorf("%d unread payload bytes", pd.Remaining()),
		}
	}
	return m, nil
}
