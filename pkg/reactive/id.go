package reactive

import "sync/atomic"

var idCounter atomic.Uint64

// nextID returns a process-wide unique ID for a cell, memo or computation.
func nextID() uint64 {
	return idCounter.Add(1)
}
