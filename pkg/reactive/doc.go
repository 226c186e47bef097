// Package reactive provides the reactive state store shared by server and
// client renders.
//
// A Store owns a set of cells, memos and computations. Reading a cell with Get
// while a computation runs records a dependency edge; writing a cell with Set
// re-runs the dependents that read it.
//
//	st := reactive.NewStore()
//	count := reactive.New(st, "count", 0)
//	doubled := reactive.NewMemo(st, func() int { return count.Get() * 2 })
//
//	st.Effect(func() {
//	    fmt.Println("doubled is", doubled.Get())
//	})
//
//	count.Set(2) // prints "doubled is 4"
//
// # Batching
//
// Writes inside Batch only mark sources as changed. When the outermost batch
// returns, the store collects every transitive dependent of the changed
// sources, orders them topologically and runs each one at most once:
//
//	st.Batch(func() {
//	    a.Set(1)
//	    b.Set(2)
//	})
//
// # Ownership
//
// A Store is owned by a single goroutine (a session event loop or the client
// runtime loop). Tracking context is kept on the store itself, not per
// goroutine. Peek, Value and SetValue may be called from other goroutines.
//
// Computations created while another computation runs are owned by it and are
// disposed before each re-run. Writing to a disposed store or a disposed cell
// panics with a *ContractViolation; Guard converts that panic into an error.
//
// # Snapshots
//
// Cells created with a non-empty key take part in snapshots and state sync.
// Snapshot encodes keyed cells as JSON, Restore stages decoded values for the
// matching New calls, and Apply writes one live cell from its encoding.
package reactive
