// Package render produces the server render of a view: markup annotated for
// hydration plus a snapshot of the state the markup was rendered from.
//
// Every element and dynamic fragment gets a hydration ID in pre-order.
// Elements carry it as data-hid; dynamic fragments are bracketed by
// <!--[hN--> and <!--]hN--> comments. Attributes are written in sorted order,
// event handlers become data-on-<event> markers, and two adjacent non-empty
// text nodes are separated by <!--|-->. The same store state therefore always
// renders to identical bytes.
//
// The snapshot holds exactly the keyed cells the view read while rendering,
// including reads made by dynamic fragments and the memos they use.
//
//	r := render.NewRenderer(render.Config{})
//	res, err := r.Render(ctx, st, counter.View)
//	err = r.RenderPage(w, render.Page{Title: "Counter", Bundle: "/pkg/app.js"}, res)
package render
