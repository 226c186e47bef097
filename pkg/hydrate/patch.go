package hydrate

import (
	"github.com/vango-dev/isomorph/pkg/dom"
	"github.com/vango-dev/isomorph/pkg/view"
)

// patchChildren reconciles old against kids by position. New nodes are
// inserted before end, or appended when end is nil.
func (h *Root) patchChildren(parent, end *dom.Node, old []*binding, kids []*view.Node) []*binding {
	out := make([]*binding, 0, len(kids))
	i := 0
	for _, k := range kids {
		if k == nil {
			continue
		}
		if i < len(old) {
			out = append(out, h.patchNode(parent, refAfter(old, i, end), old[i], k))
		} else {
			out = append(out, h.mount(parent, end, k))
		}
		i++
	}
	for ; i < len(old); i++ {
		h.unmount(old[i])
	}
	return out
}

// patchNode updates old in place when kind and tag agree and replaces it
// otherwise. ref is where a node would go if old has none.
func (h *Root) patchNode(parent, ref *dom.Node, old *binding, nv *view.Node) *binding {
	ov := old.vnode
	if ov.Kind != nv.Kind || (nv.Kind == view.KindElement && ov.Tag != nv.Tag) {
		at := firstNode(old)
		if at == nil {
			at = ref
		}
		b := h.mount(parent, at, nv)
		h.unmount(old)
		return b
	}

	switch nv.Kind {
	case view.KindText:
		b := &binding{vnode: nv, node: old.node, state: Attached}
		switch {
		case nv.Text == "" && old.node != nil:
			parent.RemoveChild(old.node)
			b.node = nil
		case nv.Text != "" && old.node == nil:
			b.node = h.doc.CreateText(nv.Text)
			parent.InsertBefore(b.node, ref)
		case old.node != nil && old.node.Data != nv.Text:
			old.node.SetData(nv.Text)
		}
		return b

	case view.KindElement:
		n := old.node
		syncAttrs(n, nv)
		h.syncListeners(n, nv)
		b := &binding{vnode: nv, hid: old.hid, node: n, state: Attached}
		b.children = h.patchChildren(n, nil, old.children, nv.Children)
		return b

	default:
		// The fragment's old computation was disposed with its owner; a new
		// one takes over the same marker range.
		b := &binding{vnode: nv, hid: old.hid, open: old.open, close: old.close, children: old.children, state: Attached}
		h.startDynamic(b, func(kids []*view.Node) {
			b.children = h.patchChildren(b.close.Parent, b.close, b.children, kids)
		})
		return b
	}
}

// mount creates nodes for nv and inserts them before ref.
func (h *Root) mount(parent, ref *dom.Node, nv *view.Node) *binding {
	b := &binding{vnode: nv, state: Attached}
	switch nv.Kind {
	case view.KindText:
		if nv.Text != "" {
			b.node = h.doc.CreateText(nv.Text)
			parent.InsertBefore(b.node, ref)
		}

	case view.KindElement:
		b.hid = h.nextHID()
		n := h.doc.CreateElement(nv.Tag)
		for _, a := range nv.MarkupAttrs() {
			n.SetAttr(a.Key, a.Value)
		}
		n.SetAttr(view.HIDAttr, b.hid)
		h.syncListeners(n, nv)
		parent.InsertBefore(n, ref)
		b.node = n
		for _, k := range nv.Children {
			if k != nil {
				b.children = append(b.children, h.mount(n, nil, k))
			}
		}

	case view.KindDynamic:
		b.hid = h.nextHID()
		b.open = h.doc.CreateComment(view.OpenMarker(b.hid))
		b.close = h.doc.CreateComment(view.CloseMarker(b.hid))
		parent.InsertBefore(b.open, ref)
		parent.InsertBefore(b.close, ref)
		h.startDynamic(b, func(kids []*view.Node) {
			b.children = h.patchChildren(b.close.Parent, b.close, nil, kids)
		})
	}
	return b
}

// unmount removes b's nodes from the document.
func (h *Root) unmount(b *binding) {
	switch {
	case b.open != nil:
		if b.comp != nil {
			b.comp.Dispose()
		}
		parent := b.open.Parent
		for n := b.open; n != nil; {
			next := n.NextSibling
			parent.RemoveChild(n)
			if n == b.close {
				break
			}
			n = next
		}
	case b.node != nil && b.node.Parent != nil:
		b.node.Parent.RemoveChild(b.node)
	}
}

// firstNode returns the first live node b occupies, or nil for an empty text.
func firstNode(b *binding) *dom.Node {
	if b.open != nil {
		return b.open
	}
	return b.node
}

// refAfter returns the first live node after old[i], or end.
func refAfter(old []*binding, i int, end *dom.Node) *dom.Node {
	for _, b := range old[i+1:] {
		if n := firstNode(b); n != nil {
			return n
		}
	}
	return end
}

func syncAttrs(n *dom.Node, nv *view.Node) {
	want := nv.MarkupAttrs()
	keep := make(map[string]bool, len(want))
	for _, a := range want {
		keep[a.Key] = true
	}
	for _, a := range liveAttrs(n) {
		if !keep[a.Key] {
			n.RemoveAttr(a.Key)
		}
	}
	for _, a := range want {
		if v, ok := n.Attr(a.Key); !ok || v != a.Value {
			n.SetAttr(a.Key, a.Value)
		}
	}
}

// syncListeners makes n's listeners and event markers match nv's handlers.
// Handlers are always replaced since closures change between renders.
func (h *Root) syncListeners(n *dom.Node, nv *view.Node) {
	events := nv.Events()
	wanted := make(map[string]bool, len(events))
	for _, ev := range events {
		wanted[ev] = true
	}
	for _, ev := range n.Listeners() {
		if !wanted[ev] {
			n.RemoveEventListener(ev)
			n.RemoveAttr(view.EventAttrPrefix + ev)
		}
	}
	for _, ev := range events {
		n.SetAttr(view.EventAttrPrefix+ev, "true")
	}
	h.attachListeners(n, nv)
}
