package reactive

import "sync"

// Memo is a derived value. It is computed on first read and recomputed
// during flush when a value it read changes. Dependents of a memo re-run
// only if the recomputed value differs.
type Memo[T any] struct {
	st      *Store
	src     source
	comp    *Computation
	compute func() T
	equal   func(T, T) bool

	mu    sync.RWMutex
	value T
	valid bool
}

// NewMemo creates a memo over compute.
func NewMemo[T any](st *Store, compute func() T, opts ...Option[T]) *Memo[T] {
	o := buildOptions(opts)
	m := &Memo[T]{
		st:      st,
		src:     source{id: nextID()},
		compute: compute,
		equal:   o.equal,
	}
	m.comp = st.newComputation(m.run, &m.src)
	m.src.producer = m.comp
	return m
}

// ID returns the memo's unique ID.
func (m *Memo[T]) ID() uint64 { return m.src.id }

// Get returns the memo value and records a dependency.
func (m *Memo[T]) Get() T {
	m.ensure()
	m.st.track(&m.src)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Peek returns the memo value without recording a dependency.
func (m *Memo[T]) Peek() T {
	m.ensure()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Computation exposes the memo's body, mainly for run counts in tests.
func (m *Memo[T]) Computation() *Computation {
	return m.comp
}

func (m *Memo[T]) ensure() {
	if m.comp.running {
		panic(violation("Memo.Get", "", ErrCycle))
	}
	m.mu.RLock()
	valid := m.valid
	m.mu.RUnlock()
	if !valid && !m.comp.disposed {
		m.st.execute(m.comp)
	}
}

func (m *Memo[T]) run() bool {
	v := m.compute()
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := !m.valid || !m.equal(m.value, v)
	m.value = v
	m.valid = true
	return changed
}
