// Package view defines the view tree shared by the server renderer and the
// client hydrator.
//
// A view function builds a tree of *Node values from three kinds: elements,
// text, and dynamic fragments. A dynamic fragment holds a render function
// that reads reactive cells; it is the only part of the tree that re-renders
// when those cells change.
//
//	func Counter(st *reactive.Store) *view.Node {
//	    count := reactive.New(st, "count", 0)
//	    return view.Div(
//	        view.Span(view.Dyn(func() *view.Node {
//	            return view.Textf("%d", count.Get())
//	        })),
//	        view.Button(view.OnClick(func() { count.Update(inc) }), "+"),
//	    )
//	}
//
// Event handlers are attributes whose key starts with "on" and whose value is
// a Handler. They never appear in markup; the renderer emits a data-on-<event>
// marker instead.
package view
