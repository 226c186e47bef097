package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups error codes.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryCLI       Category = "cli"
	CategoryServer    Category = "server"
	CategoryHydration Category = "hydration"
	CategoryProtocol  Category = "protocol"
)

// Error is a coded error with operator-facing detail.
type Error struct {
	Code       string
	Category   Category
	Message    string
	Detail     string
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil && e.Detail == "" {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithDetailf is WithDetail with formatting.
func (e *Error) WithDetailf(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered code.
func New(code string) *Error {
	t, ok := registry[code]
	if !ok {
		return &Error{Code: code, Message: "Unknown error"}
	}
	return &Error{
		Code:       code,
		Category:   t.Category,
		Message:    t.Message,
		Suggestion: t.Suggestion,
	}
}

// Newf creates an uncoded Error with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// FromError returns err as an *Error, wrapping it under code if needed.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err is or wraps an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Code == code
}
