package protocol

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by DecodeError.
var (
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrInvalidBool        = errors.New("protocol: invalid boolean value")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")

	// ErrSequenceGap is returned by a Sequencer when a frame arrives out of
	// order or after a lost frame.
	ErrSequenceGap = errors.New("protocol: sequence gap")

	// ErrDuplicateTag is returned when two variants register the same tag.
	ErrDuplicateTag = errors.New("protocol: duplicate message tag")
)

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind uint8

const (
	// Truncated means the input ended before a complete value was read.
	// This includes a length prefix that claims more bytes than remain.
	Truncated DecodeErrorKind = iota + 1
	// UnknownVariant means the tag is not registered.
	UnknownVariant
	// LengthMismatch means a payload present in full disagrees with its
	// length prefix: the variant needed more bytes than the prefix granted,
	// or left some unread, or bytes trail the envelope.
	LengthMismatch
	// Malformed means the bytes are complete but the value is invalid.
	Malformed
)

// String returns the string representation of the kind.
func (k DecodeErrorKind) String() string {
	switch k {
	case Truncated:
		return "Truncated"
	case UnknownVariant:
		return "UnknownVariant"
	case LengthMismatch:
		return "LengthMismatch"
	case Malformed:
		return "Malformed"
	default:
		return "Unknown"
	}
}

// DecodeError is returned for any input the codec cannot turn into a
// Message. A transport treats it as fatal to the connection.
type DecodeError struct {
	Kind  DecodeErrorKind
	Tag   uint64 // Variant tag, when known
	Field string // What was being read
	Err   error  // Optional underlying cause
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("protocol: decode %s", e.Kind)
	if e.Field != "" {
		msg += " reading " + e.Field
	}
	if e.Kind == UnknownVariant || e.Tag != 0 {
		msg += fmt.Sprintf(" (tag 0x%04x)", e.Tag)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DecodeError of the same kind.
// A DecodeError with zero Kind matches any kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	return t.Kind == 0 || t.Kind == e.Kind
}

// Kind sentinels for errors.Is matching.
var (
	ErrTruncated      = &DecodeError{Kind: Truncated}
	ErrUnknownVariant = &DecodeError{Kind: UnknownVariant}
	ErrLengthMismatch = &DecodeError{Kind: LengthMismatch}
	ErrMalformed      = &DecodeError{Kind: Malformed}
)

func truncated(field string) *DecodeError {
	return &DecodeError{Kind: Truncated, Field: field}
}

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
