package reactive

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// DefaultMaxFlushPasses bounds how many times a single flush may re-run when
// computations write to cells that other computations read.
const DefaultMaxFlushPasses = 100

// source is the producer side of a dependency edge: a cell or a memo.
type source struct {
	id       uint64
	key      string
	subs     map[*Computation]struct{}
	producer *Computation // set for memos
}

func (s *source) unlink() {
	for c := range s.subs {
		delete(c.sources, s)
	}
	s.subs = nil
}

// ownedCell is what a computation needs to tear down the cells it created.
type ownedCell interface {
	dispose()
}

// keyedCell is a cell that takes part in snapshots and state sync.
type keyedCell interface {
	ownedCell
	source() *source
	encode() ([]byte, error)
	decode(raw []byte) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for recoverable problems such as a staged
// value that no longer decodes into its cell type.
func WithLogger(l *slog.Logger) StoreOption {
	return func(st *Store) {
		if l != nil {
			st.logger = l
		}
	}
}

// WithMaxFlushPasses overrides DefaultMaxFlushPasses.
func WithMaxFlushPasses(n int) StoreOption {
	return func(st *Store) {
		if n > 0 {
			st.maxPasses = n
		}
	}
}

// Store owns cells, memos and computations and the graph between them.
type Store struct {
	logger    *slog.Logger
	maxPasses int

	// stack holds the computations currently running, innermost last.
	// A nil entry marks an untracked region.
	stack    []*Computation
	hold     int
	flushing bool
	disposed bool
	pending  map[*source]struct{}

	roots    []*Computation
	cells    []ownedCell
	cleanups []func()

	mu     sync.Mutex
	keyed  map[string]keyedCell
	staged map[string]json.RawMessage

	valuesMu sync.RWMutex
	values   map[any]any

	status *Cell[Status]
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		logger:    slog.Default().With("component", "reactive"),
		maxPasses: DefaultMaxFlushPasses,
		keyed:     make(map[string]keyedCell),
		staged:    make(map[string]json.RawMessage),
		values:    make(map[any]any),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.status = New(st, "", Connecting)
	return st
}

// Status returns the connection status cell. Views read it to show an
// offline or reload indicator.
func (st *Store) Status() *Cell[Status] {
	return st.status
}

// Logger returns the store's logger.
func (st *Store) Logger() *slog.Logger {
	return st.logger
}

// SetStatus writes the status cell.
func (st *Store) SetStatus(s Status) {
	st.status.Set(s)
}

// SetValue stores an arbitrary value on the store. It is how collaborators
// such as the transport sender are made available to view handlers.
func (st *Store) SetValue(key, value any) {
	st.valuesMu.Lock()
	defer st.valuesMu.Unlock()
	st.values[key] = value
}

// Value returns a value set with SetValue, or nil.
func (st *Store) Value(key any) any {
	st.valuesMu.RLock()
	defer st.valuesMu.RUnlock()
	return st.values[key]
}

// Disposed reports whether Dispose has been called.
func (st *Store) Disposed() bool {
	return st.disposed
}

// Dispose tears down every computation and cell. No computation runs after
// Dispose returns, and any later write panics.
func (st *Store) Dispose() {
	if st.disposed {
		return
	}
	st.disposed = true
	st.pending = nil

	roots := st.roots
	st.roots = nil
	for i := len(roots) - 1; i >= 0; i-- {
		roots[i].dispose()
	}
	for _, c := range st.cells {
		c.dispose()
	}
	st.cells = nil
	for i := len(st.cleanups) - 1; i >= 0; i-- {
		st.cleanups[i]()
	}
	st.cleanups = nil
}

// OnCleanup registers fn to run when the current computation re-runs or is
// disposed. Outside any computation fn runs when the store is disposed.
func (st *Store) OnCleanup(fn func()) {
	if owner := st.owner(); owner != nil {
		owner.cleanups = append(owner.cleanups, fn)
		return
	}
	if st.disposed {
		fn()
		return
	}
	st.cleanups = append(st.cleanups, fn)
}

// Effect creates a computation that runs fn now and again whenever a value
// fn read changes.
func (st *Store) Effect(fn func()) *Computation {
	if st.disposed {
		panic(violation("Effect", "", ErrStoreDisposed))
	}
	c := st.newComputation(func() bool {
		fn()
		return false
	}, nil)
	st.execute(c)
	st.settle()
	return c
}

// Batch runs fn and defers all recomputation until the outermost batch
// returns.
func (st *Store) Batch(fn func()) {
	st.hold++
	completed := false
	defer func() {
		st.hold--
		if completed {
			st.settle()
		}
	}()
	fn()
	completed = true
}

// Collect runs fn and returns the sorted keys of the keyed cells it read,
// following memos through to their cells. Collect records reads without
// creating a dependent: nothing re-runs when those cells change, and cells
// or computations fn creates are owned as if Collect were not there.
func (st *Store) Collect(fn func()) []string {
	rec := &Computation{
		id:       nextID(),
		st:       st,
		sources:  make(map[*source]struct{}),
		detached: true,
	}
	st.stack = append(st.stack, rec)
	defer func() {
		st.stack = st.stack[:len(st.stack)-1]
		for s := range rec.sources {
			delete(s.subs, rec)
		}
	}()
	fn()
	return rec.Keys()
}

// Untracked runs fn without recording reads as dependencies of the running
// computation.
func (st *Store) Untracked(fn func()) {
	st.stack = append(st.stack, nil)
	defer func() { st.stack = st.stack[:len(st.stack)-1] }()
	fn()
}

// current returns the computation that should record reads, or nil.
func (st *Store) current() *Computation {
	if n := len(st.stack); n > 0 {
		return st.stack[n-1]
	}
	return nil
}

// owner returns the innermost running computation, skipping untracked marks
// and Collect recorders.
func (st *Store) owner() *Computation {
	for i := len(st.stack) - 1; i >= 0; i-- {
		if c := st.stack[i]; c != nil && !c.detached {
			return c
		}
	}
	return nil
}

func (st *Store) track(s *source) {
	c := st.current()
	if c == nil || c.disposed {
		return
	}
	if s.subs == nil {
		s.subs = make(map[*Computation]struct{})
	}
	s.subs[c] = struct{}{}
	c.sources[s] = struct{}{}
}

func (st *Store) adoptCell(c ownedCell) {
	if owner := st.owner(); owner != nil {
		owner.cells = append(owner.cells, c)
		return
	}
	st.cells = append(st.cells, c)
}

// changed records a write and flushes unless a batch or a run is in progress.
func (st *Store) changed(s *source) {
	if st.pending == nil {
		st.pending = make(map[*source]struct{})
	}
	st.pending[s] = struct{}{}
	st.settle()
}

func (st *Store) settle() {
	if st.hold == 0 && len(st.pending) > 0 {
		st.flush()
	}
}

func (st *Store) checkWritable(op, key string) {
	if st.disposed {
		panic(violation(op, key, ErrStoreDisposed))
	}
}
