package reactive

import "sort"

// flush runs every computation affected by pending writes. Writes made by
// those computations are picked up by further passes.
func (st *Store) flush() {
	if st.flushing || st.disposed {
		return
	}
	st.flushing = true
	st.hold++
	defer func() {
		st.hold--
		st.flushing = false
	}()

	for pass := 0; len(st.pending) > 0; pass++ {
		if pass >= st.maxPasses {
			st.pending = nil
			panic(violation("flush", "", ErrUpdateLoop))
		}
		changed := st.pending
		st.pending = nil
		st.runPass(changed)
		if st.disposed {
			return
		}
	}
}

// runPass recomputes the transitive dependents of changed in topological
// order. A computation runs only if one of its sources actually changed, so
// a memo that recomputes to an equal value stops propagation.
func (st *Store) runPass(changed map[*source]struct{}) {
	dirty := make(map[*Computation]struct{})
	queue := make([]*source, 0, len(changed))
	for s := range changed {
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for c := range s.subs {
			if _, ok := dirty[c]; ok || c.disposed || c.detached {
				continue
			}
			dirty[c] = struct{}{}
			if c.out != nil {
				queue = append(queue, c.out)
			}
		}
	}

	for _, c := range topoOrder(dirty) {
		if c.disposed || !c.readsAny(changed) {
			continue
		}
		if st.execute(c) && c.out != nil {
			changed[c.out] = struct{}{}
		}
		if st.disposed {
			return
		}
	}
}

// topoOrder orders the dirty set with Kahn's algorithm. Ties are broken by
// ID so that flush order is deterministic. A cycle panics.
func topoOrder(dirty map[*Computation]struct{}) []*Computation {
	indegree := make(map[*Computation]int, len(dirty))
	for c := range dirty {
		if _, ok := indegree[c]; !ok {
			indegree[c] = 0
		}
		if c.out == nil {
			continue
		}
		for dep := range c.out.subs {
			if _, ok := dirty[dep]; ok && dep != c {
				indegree[dep]++
			}
		}
	}

	var ready []*Computation
	for c, n := range indegree {
		if n == 0 {
			ready = append(ready, c)
		}
	}
	sortByID(ready)

	order := make([]*Computation, 0, len(dirty))
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		order = append(order, c)
		if c.out == nil {
			continue
		}
		var next []*Computation
		for dep := range c.out.subs {
			if _, ok := dirty[dep]; !ok || dep == c {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				next = append(next, dep)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			sortByID(ready)
		}
	}

	if len(order) != len(dirty) {
		panic(violation("flush", "", ErrCycle))
	}
	return order
}

func sortByID(cs []*Computation) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].id < cs[j].id })
}
