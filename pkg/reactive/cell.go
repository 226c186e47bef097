package reactive

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Option configures a Cell or a Memo.
type Option[T any] func(*options[T])

type options[T any] struct {
	equal func(T, T) bool
}

// WithEquals replaces the default equality check. A write that compares
// equal to the current value does not notify dependents.
func WithEquals[T any](fn func(T, T) bool) Option[T] {
	return func(o *options[T]) { o.equal = fn }
}

func buildOptions[T any](opts []Option[T]) options[T] {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}
	if o.equal == nil {
		o.equal = equalsFor[T]()
	}
	return o
}

// Cell is a typed mutable reactive value.
type Cell[T any] struct {
	st    *Store
	src   source
	equal func(T, T) bool

	mu    sync.RWMutex
	value T

	disposed atomic.Bool
}

// New creates a cell in st. A non-empty key makes the cell part of snapshots
// and state sync; calling New again with the same key returns the existing
// cell, and a value staged by Restore for that key replaces initial.
func New[T any](st *Store, key string, initial T, opts ...Option[T]) *Cell[T] {
	st.checkWritable("New", key)

	if key != "" {
		st.mu.Lock()
		if existing, ok := st.keyed[key]; ok {
			st.mu.Unlock()
			c, ok := existing.(*Cell[T])
			if !ok {
				panic(violation("New", key, fmt.Errorf("%w: have %T", ErrKeyType, existing)))
			}
			return c
		}
		st.mu.Unlock()
	}

	o := buildOptions(opts)
	c := &Cell[T]{
		st:    st,
		src:   source{id: nextID(), key: key},
		equal: o.equal,
		value: initial,
	}

	if key != "" {
		st.mu.Lock()
		if raw, ok := st.staged[key]; ok {
			delete(st.staged, key)
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				st.logger.Warn("discarding staged value", "key", key, "error", err)
			} else {
				c.value = v
			}
		}
		st.keyed[key] = c
		st.mu.Unlock()
	}
	st.adoptCell(c)
	return c
}

// ID returns the cell's unique ID.
func (c *Cell[T]) ID() uint64 { return c.src.id }

// Key returns the cell's key, or "" for an unkeyed cell.
func (c *Cell[T]) Key() string { return c.src.key }

// Get returns the value and records a dependency of the running computation.
func (c *Cell[T]) Get() T {
	c.st.track(&c.src)
	return c.Peek()
}

// Peek returns the value without recording a dependency.
func (c *Cell[T]) Peek() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set writes v. Dependents re-run when v differs from the current value.
func (c *Cell[T]) Set(v T) {
	c.st.checkWritable("Set", c.src.key)
	if c.disposed.Load() {
		panic(violation("Set", c.src.key, ErrCellDisposed))
	}

	c.mu.Lock()
	if c.equal(c.value, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.mu.Unlock()

	c.st.changed(&c.src)
}

// Update writes fn applied to the current value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.Peek()))
}

func (c *Cell[T]) dispose() {
	if c.disposed.Swap(true) {
		return
	}
	c.src.unlink()
	if c.src.key == "" {
		return
	}
	c.st.mu.Lock()
	if existing, ok := c.st.keyed[c.src.key]; ok && existing == keyedCell(c) {
		delete(c.st.keyed, c.src.key)
	}
	c.st.mu.Unlock()
}

func (c *Cell[T]) source() *source { return &c.src }

func (c *Cell[T]) encode() ([]byte, error) {
	return json.Marshal(c.Peek())
}

func (c *Cell[T]) decode(raw []byte) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	c.Set(v)
	return nil
}
