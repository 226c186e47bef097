package hydrate

import (
	"errors"
	"fmt"
)

// ErrStructuralMismatch is the sentinel every *MismatchError wraps.
var ErrStructuralMismatch = errors.New("hydrate: structural mismatch")

// ErrDisposed is returned when a disposed root is used.
var ErrDisposed = errors.New("hydrate: root disposed")

// MismatchError reports where the live document diverged from the view.
type MismatchError struct {
	Path     string // Child index path from the container, e.g. /0/2
	HID      string // Hydration ID expected at Path, if any
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	if e.HID != "" {
		return fmt.Sprintf("hydrate: mismatch at %s (%s): expected %s, got %s", e.Path, e.HID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("hydrate: mismatch at %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Unwrap returns ErrStructuralMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrStructuralMismatch
}

// IsMismatch reports whether err is or wraps a hydration mismatch.
func IsMismatch(err error) bool {
	return errors.Is(err, ErrStructuralMismatch)
}
