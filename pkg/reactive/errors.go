package reactive

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreDisposed is reported when a disposed store is written to.
	ErrStoreDisposed = errors.New("reactive: store disposed")

	// ErrCellDisposed is reported when a cell owned by a disposed
	// computation is written to.
	ErrCellDisposed = errors.New("reactive: cell disposed")

	// ErrCycle is reported when the dependency graph contains a cycle.
	ErrCycle = errors.New("reactive: dependency cycle")

	// ErrUpdateLoop is reported when computations keep writing to their own
	// sources and a flush does not settle.
	ErrUpdateLoop = errors.New("reactive: update loop did not settle")

	// ErrKeyType is reported when a key is reused with a different value type.
	ErrKeyType = errors.New("reactive: key registered with a different type")
)

// ContractViolation is a programming error in the use of a Store.
// It is raised with panic and is recoverable only through Guard.
type ContractViolation struct {
	Op  string // Operation that detected the violation
	Key string // Cell key, if any
	Err error  // One of the sentinel errors above
}

// Error implements the error interface.
func (v *ContractViolation) Error() string {
	if v.Key != "" {
		return fmt.Sprintf("reactive: contract violation in %s(%q): %v", v.Op, v.Key, v.Err)
	}
	return fmt.Sprintf("reactive: contract violation in %s: %v", v.Op, v.Err)
}

// Unwrap returns the underlying sentinel.
func (v *ContractViolation) Unwrap() error {
	return v.Err
}

func violation(op, key string, err error) *ContractViolation {
	return &ContractViolation{Op: op, Key: key, Err: err}
}

// Guard runs fn and converts a *ContractViolation panic into an error.
// Any other panic propagates unchanged.
func Guard(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if cv, ok := r.(*ContractViolation); ok {
			err = cv
			return
		}
		panic(r)
	}()
	fn()
	return nil
}
