package reactive

import "sort"

// Computation is the dependent side of the graph: a dynamic fragment render,
// an effect, a sync pump or the body of a memo.
type Computation struct {
	id  uint64
	st  *Store
	fn  func() bool // reports whether out changed
	out *source     // set for memos

	owner    *Computation
	children []*Computation
	cells    []ownedCell
	cleanups []func()
	sources  map[*source]struct{}

	runs     int
	running  bool
	disposed bool
	detached bool // Collect recorder
}

func (st *Store) newComputation(fn func() bool, out *source) *Computation {
	c := &Computation{
		id:      nextID(),
		st:      st,
		fn:      fn,
		out:     out,
		sources: make(map[*source]struct{}),
	}
	if owner := st.owner(); owner != nil {
		c.owner = owner
		owner.children = append(owner.children, c)
	} else {
		st.roots = append(st.roots, c)
	}
	return c
}

// ID returns the computation's unique ID.
func (c *Computation) ID() uint64 { return c.id }

// Runs returns how many times the computation has executed.
func (c *Computation) Runs() int { return c.runs }

// Disposed reports whether the computation has been torn down.
func (c *Computation) Disposed() bool { return c.disposed }

// Dispose tears the computation down together with everything it owns.
func (c *Computation) Dispose() {
	if c.disposed {
		return
	}
	c.dispose()
	if c.owner != nil {
		c.owner.removeChild(c)
	} else {
		c.st.removeRoot(c)
	}
}

// Keys returns the sorted keys of every keyed cell the computation read
// during its last run, following memos through to the cells they read.
func (c *Computation) Keys() []string {
	seen := make(map[*source]bool)
	set := make(map[string]struct{})
	var walk func(*Computation)
	walk = func(c *Computation) {
		for s := range c.sources {
			if seen[s] {
				continue
			}
			seen[s] = true
			if s.key != "" {
				set[s.key] = struct{}{}
			}
			if s.producer != nil {
				walk(s.producer)
			}
		}
	}
	walk(c)

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readsAny reports whether any source of c is in changed.
func (c *Computation) readsAny(changed map[*source]struct{}) bool {
	for s := range c.sources {
		if _, ok := changed[s]; ok {
			return true
		}
	}
	return false
}

// reset drops everything the previous run produced.
func (c *Computation) reset() {
	children := c.children
	c.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		children[i].dispose()
	}

	cells := c.cells
	c.cells = nil
	for _, cell := range cells {
		cell.dispose()
	}

	cleanups := c.cleanups
	c.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	for s := range c.sources {
		delete(s.subs, c)
	}
	clear(c.sources)
}

func (c *Computation) dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.reset()
}

func (c *Computation) removeChild(child *Computation) {
	for i, x := range c.children {
		if x == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}

func (st *Store) removeRoot(c *Computation) {
	for i, x := range st.roots {
		if x == c {
			st.roots = append(st.roots[:i], st.roots[i+1:]...)
			return
		}
	}
}

// execute runs c with itself as the tracking context.
func (st *Store) execute(c *Computation) bool {
	c.reset()
	c.running = true
	c.runs++
	st.stack = append(st.stack, c)
	st.hold++
	defer func() {
		st.stack = st.stack[:len(st.stack)-1]
		st.hold--
		c.running = false
	}()
	return c.fn()
}
