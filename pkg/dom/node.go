package dom

import (
	"sort"
	"strings"
)

// NodeType identifies what a Node represents.
type NodeType uint8

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
)

// String returns the string representation of the NodeType.
func (t NodeType) String() string {
	switch t {
	case DocumentNode:
		return "Document"
	case ElementNode:
		return "Element"
	case TextNode:
		return "Text"
	case CommentNode:
		return "Comment"
	default:
		return "Unknown"
	}
}

// Attr is an element attribute.
type Attr struct {
	Key string
	Val string
}

// Event is dispatched to listeners.
type Event struct {
	Type  string
	Value string
}

// Listener handles a dispatched event.
type Listener func(Event)

// Node is a node of a Document.
type Node struct {
	Type NodeType
	Tag  string // ElementNode
	Data string // TextNode, CommentNode

	Parent, FirstChild, LastChild, PrevSibling, NextSibling *Node

	doc       *Document
	attrs     []Attr
	listeners map[string]Listener
}

// Document returns the document n belongs to.
func (n *Node) Document() *Document { return n.doc }

// Children returns n's children in order.
func (n *Node) Children() []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Attr returns the value of attribute key.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Attrs returns a copy of n's attributes in document order.
func (n *Node) Attrs() []Attr {
	return append([]Attr(nil), n.attrs...)
}

// SetAttr sets or replaces attribute key.
func (n *Node) SetAttr(key, val string) {
	for i := range n.attrs {
		if n.attrs[i].Key == key {
			n.attrs[i].Val = val
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Key: key, Val: val})
}

// RemoveAttr removes attribute key if present.
func (n *Node) RemoveAttr(key string) {
	for i := range n.attrs {
		if n.attrs[i].Key == key {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return
		}
	}
}

// SetData replaces the data of a text or comment node.
func (n *Node) SetData(data string) {
	n.Data = data
}

// TextContent returns the concatenated text of n and its descendants.
func (n *Node) TextContent() string {
	if n.Type == TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != CommentNode {
			b.WriteString(c.TextContent())
		}
	}
	return b.String()
}

// AppendChild adds c as the last child of n, detaching it first.
func (n *Node) AppendChild(c *Node) {
	n.InsertBefore(c, nil)
}

// InsertBefore inserts c before ref, or at the end when ref is nil.
func (n *Node) InsertBefore(c, ref *Node) {
	if c.Parent != nil {
		c.Parent.RemoveChild(c)
	}
	c.Parent = n
	if ref == nil {
		c.PrevSibling = n.LastChild
		if n.LastChild != nil {
			n.LastChild.NextSibling = c
		} else {
			n.FirstChild = c
		}
		n.LastChild = c
		return
	}
	c.NextSibling = ref
	c.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = c
	} else {
		n.FirstChild = c
	}
	ref.PrevSibling = c
}

// RemoveChild detaches c from n.
func (n *Node) RemoveChild(c *Node) {
	if c.Parent != n {
		return
	}
	if c.PrevSibling != nil {
		c.PrevSibling.NextSibling = c.NextSibling
	} else {
		n.FirstChild = c.NextSibling
	}
	if c.NextSibling != nil {
		c.NextSibling.PrevSibling = c.PrevSibling
	} else {
		n.LastChild = c.PrevSibling
	}
	c.Parent, c.PrevSibling, c.NextSibling = nil, nil, nil
}

// ReplaceChild puts c where old was.
func (n *Node) ReplaceChild(c, old *Node) {
	next := old.NextSibling
	n.RemoveChild(old)
	n.InsertBefore(c, next)
}

// AddEventListener sets the listener for event, replacing any previous one.
func (n *Node) AddEventListener(event string, l Listener) {
	if n.listeners == nil {
		n.listeners = make(map[string]Listener)
	}
	n.listeners[event] = l
}

// RemoveEventListener removes the listener for event.
func (n *Node) RemoveEventListener(event string) {
	delete(n.listeners, event)
}

// Listeners returns the sorted event types n listens to.
func (n *Node) Listeners() []string {
	out := make([]string, 0, len(n.listeners))
	for ev := range n.listeners {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}

// Dispatch delivers ev to n and then to each ancestor with a listener for
// ev.Type. It reports how many listeners ran.
func (n *Node) Dispatch(ev Event) int {
	ran := 0
	for cur := n; cur != nil; cur = cur.Parent {
		if l, ok := cur.listeners[ev.Type]; ok {
			l(ev)
			ran++
		}
	}
	return ran
}

// Find returns the first node in pre-order under n (n included) for which
// match returns true.
func (n *Node) Find(match func(*Node) bool) *Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := c.Find(match); found != nil {
			return found
		}
	}
	return nil
}
