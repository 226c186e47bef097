package hydrate

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/vango-dev/isomorph/pkg/dom"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/view"
)

// State is the hydration state of a node or of a whole root.
type State uint8

const (
	Pending State = iota
	Matching
	Attached
	Mismatched
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Matching:
		return "Matching"
	case Attached:
		return "Attached"
	case Mismatched:
		return "Mismatched"
	default:
		return "Unknown"
	}
}

// Options configures Hydrate.
type Options struct {
	Logger *slog.Logger
}

// Stats counts what a root has done.
type Stats struct {
	Elements  int // Elements claimed during hydration
	Texts     int // Text nodes claimed during hydration
	Dynamics  int // Dynamic fragments claimed during hydration
	Listeners int // Listeners attached, including by patches
	Patches   int // Dynamic fragment re-renders applied
}

// Root is a hydrated view bound to a container element.
type Root struct {
	st        *reactive.Store
	doc       *dom.Document
	container *dom.Node
	logger    *slog.Logger

	state    State
	root     *binding
	comps    []*reactive.Computation // Top-level fragments only
	depth    int                     // Nesting of running fragments
	hid      int
	stats    Stats
	disposed bool
}

// binding links a view node to the live nodes that represent it.
type binding struct {
	vnode *view.Node
	hid   string
	state State

	node     *dom.Node  // Element or text; nil for an empty text
	children []*binding // Element children or dynamic content

	open, close *dom.Node // Dynamic markers
	comp        *reactive.Computation
}

// Hydrate runs v against st and attaches the result to the children of
// container. It creates no nodes. On a mismatch it returns a
// *MismatchError, disposes every computation it created and leaves the
// document untouched apart from listeners attached before the divergence.
func Hydrate(st *reactive.Store, container *dom.Node, v view.View, opts Options) (*Root, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Root{
		st:        st,
		doc:       container.Document(),
		container: container,
		logger:    opts.Logger.With("component", "hydrate"),
		state:     Matching,
	}

	var err error
	if guardErr := reactive.Guard(func() {
		vroot := v(st)
		cur := &cursor{next: container.FirstChild}
		if vroot != nil {
			h.root, err = h.hydrateNode(cur, vroot, "/0")
		}
		if err == nil {
			err = cur.expectEnd("", "end of container")
		}
	}); guardErr != nil {
		err = guardErr
	}

	if err != nil {
		h.state = Mismatched
		h.disposeComps()
		h.logger.Warn("hydration failed", "error", err)
		return h, err
	}
	h.state = Attached
	h.logger.Debug("hydrated",
		"elements", h.stats.Elements,
		"texts", h.stats.Texts,
		"dynamics", h.stats.Dynamics,
		"listeners", h.stats.Listeners,
	)
	return h, nil
}

// State returns the root's hydration state.
func (h *Root) State() State { return h.state }

// Stats returns a copy of the root's counters.
func (h *Root) Stats() Stats { return h.stats }

// Container returns the element the view is attached to.
func (h *Root) Container() *dom.Node { return h.container }

// Dispose stops all dynamic fragments. The document keeps its last state.
func (h *Root) Dispose() {
	if h.disposed {
		return
	}
	h.disposed = true
	h.disposeComps()
}

func (h *Root) disposeComps() {
	for i := len(h.comps) - 1; i >= 0; i-- {
		h.comps[i].Dispose()
	}
	h.comps = nil
}

func (h *Root) nextHID() string {
	h.hid++
	return view.HID(h.hid)
}

// cursor walks a sibling list, ignoring text separators.
type cursor struct {
	next *dom.Node
}

func (c *cursor) peek() *dom.Node {
	for c.next != nil && c.next.Type == dom.CommentNode && c.next.Data == view.TextSeparator {
		c.next = c.next.NextSibling
	}
	return c.next
}

func (c *cursor) advance() {
	c.next = c.next.NextSibling
}

func (c *cursor) expectEnd(path, what string) error {
	if n := c.peek(); n != nil {
		return &MismatchError{Path: path, Expected: what, Actual: describe(n)}
	}
	return nil
}

func (h *Root) hydrateChildren(cur *cursor, kids []*view.Node, path string) ([]*binding, error) {
	out := make([]*binding, 0, len(kids))
	i := 0
	for _, k := range kids {
		if k == nil {
			continue
		}
		b, err := h.hydrateNode(cur, k, path+"/"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		i++
	}
	return out, nil
}

func (h *Root) hydrateNode(cur *cursor, vn *view.Node, path string) (*binding, error) {
	b := &binding{vnode: vn, state: Matching}
	var err error
	switch vn.Kind {
	case view.KindText:
		err = h.hydrateText(cur, b, path)
	case view.KindElement:
		err = h.hydrateElement(cur, b, path)
	case view.KindDynamic:
		err = h.hydrateDynamic(cur, b, path)
	default:
		err = &MismatchError{Path: path, Expected: "known node kind", Actual: vn.Kind.String()}
	}
	if err != nil {
		b.state = Mismatched
		return nil, err
	}
	b.state = Attached
	return b, nil
}

func (h *Root) hydrateText(cur *cursor, b *binding, path string) error {
	want := b.vnode.Text
	if want == "" {
		// Empty text renders nothing on the server.
		return nil
	}
	n := cur.peek()
	if n == nil || n.Type != dom.TextNode || n.Data != want {
		return &MismatchError{Path: path, Expected: b.vnode.Describe(), Actual: describe(n)}
	}
	cur.advance()
	b.node = n
	h.stats.Texts++
	return nil
}

func (h *Root) hydrateElement(cur *cursor, b *binding, path string) error {
	vn := b.vnode
	b.hid = h.nextHID()
	n := cur.peek()
	if n == nil || n.Type != dom.ElementNode || n.Tag != vn.Tag {
		return &MismatchError{Path: path, HID: b.hid, Expected: vn.Describe(), Actual: describe(n)}
	}
	if got, _ := n.Attr(view.HIDAttr); got != b.hid {
		return &MismatchError{Path: path, HID: b.hid, Expected: view.HIDAttr + "=" + b.hid, Actual: view.HIDAttr + "=" + got}
	}
	want := formatAttrs(vn.MarkupAttrs())
	if got := formatAttrs(liveAttrs(n)); got != want {
		return &MismatchError{Path: path, HID: b.hid, Expected: "attributes " + want, Actual: "attributes " + got}
	}
	cur.advance()
	b.node = n
	h.stats.Elements++
	h.attachListeners(n, vn)

	inner := &cursor{next: n.FirstChild}
	kids, err := h.hydrateChildren(inner, vn.Children, path)
	if err != nil {
		return err
	}
	b.children = kids
	return inner.expectEnd(path, "end of <"+vn.Tag+">")
}

func (h *Root) hydrateDynamic(cur *cursor, b *binding, path string) error {
	b.hid = h.nextHID()
	open := cur.peek()
	if open == nil || open.Type != dom.CommentNode || open.Data != view.OpenMarker(b.hid) {
		return &MismatchError{Path: path, HID: b.hid, Expected: "comment " + strconv.Quote(view.OpenMarker(b.hid)), Actual: describe(open)}
	}
	cur.advance()
	b.open = open

	var err error
	h.startDynamic(b, func(kids []*view.Node) {
		b.children, err = h.hydrateChildren(cur, kids, path)
		if err != nil {
			return
		}
		closing := cur.peek()
		if closing == nil || closing.Type != dom.CommentNode || closing.Data != view.CloseMarker(b.hid) {
			err = &MismatchError{Path: path, HID: b.hid, Expected: "comment " + strconv.Quote(view.CloseMarker(b.hid)), Actual: describe(closing)}
			return
		}
		cur.advance()
		b.close = closing
	})
	if err != nil {
		return err
	}
	h.stats.Dynamics++
	return nil
}

// startDynamic creates the computation behind a dynamic fragment. The first
// run hands the expanded children to first; later runs patch the range.
func (h *Root) startDynamic(b *binding, first func([]*view.Node)) {
	initial := true
	topLevel := h.depth == 0
	b.comp = h.st.Effect(func() {
		h.depth++
		defer func() { h.depth-- }()

		kids := b.vnode.Expand()
		if initial {
			initial = false
			first(kids)
			return
		}
		b.children = h.patchChildren(b.close.Parent, b.close, b.children, kids)
		h.stats.Patches++
	})
	// Nested fragments are owned by the fragment that created them.
	if topLevel {
		h.comps = append(h.comps, b.comp)
	}
}

func (h *Root) attachListeners(n *dom.Node, vn *view.Node) {
	for _, ev := range vn.Events() {
		handler := vn.Handler(ev)
		n.AddEventListener(ev, func(e dom.Event) {
			handler(view.Event{Type: e.Type, Value: e.Value})
		})
		h.stats.Listeners++
	}
}

// liveAttrs returns n's attributes without hydration and event markers,
// sorted by key.
func liveAttrs(n *dom.Node) []view.MarkupAttr {
	var out []view.MarkupAttr
	for _, a := range n.Attrs() {
		if a.Key == view.HIDAttr || strings.HasPrefix(a.Key, view.EventAttrPrefix) {
			continue
		}
		out = append(out, view.MarkupAttr{Key: a.Key, Value: a.Val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func formatAttrs(attrs []view.MarkupAttr) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = a.Key + "=" + strconv.Quote(a.Value)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func describe(n *dom.Node) string {
	if n == nil {
		return "nothing"
	}
	switch n.Type {
	case dom.ElementNode:
		if hid, ok := n.Attr(view.HIDAttr); ok {
			return fmt.Sprintf("<%s %s=%q>", n.Tag, view.HIDAttr, hid)
		}
		return "<" + n.Tag + ">"
	case dom.TextNode:
		return fmt.Sprintf("text %q", n.Data)
	case dom.CommentNode:
		return fmt.Sprintf("comment %q", n.Data)
	default:
		return n.Type.String()
	}
}
