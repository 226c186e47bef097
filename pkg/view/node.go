package view

import (
	"fmt"

	"github.com/vango-dev/isomorph/pkg/reactive"
)

// View builds a tree from the cells of st. The same View runs on the server
// to render and on the client to hydrate, so it must be deterministic for a
// given store state.
type View func(st *reactive.Store) *Node

// Kind is the node type discriminator.
type Kind uint8

const (
	KindElement Kind = iota // <div>, <span>, ...
	KindText                // Plain text
	KindDynamic             // Reactive fragment
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindDynamic:
		return "Dynamic"
	default:
		return "Unknown"
	}
}

// Node is one node of a view tree. A tree is owned by the render pass that
// produced it and must not be modified afterwards.
type Node struct {
	Kind     Kind
	Tag      string         // KindElement
	Attrs    Attrs          // KindElement; includes event handlers
	Children []*Node        // KindElement
	Text     string         // KindText
	Render   func() []*Node // KindDynamic
}

// Describe returns a short description used in mismatch reports.
func (n *Node) Describe() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case KindElement:
		return "<" + n.Tag + ">"
	case KindText:
		return fmt.Sprintf("text %q", n.Text)
	case KindDynamic:
		return "dynamic fragment"
	default:
		return n.Kind.String()
	}
}

// Text creates a text node.
func Text(content string) *Node {
	return &Node{Kind: KindText, Text: content}
}

// Textf creates a formatted text node.
func Textf(format string, args ...any) *Node {
	return Text(fmt.Sprintf(format, args...))
}

// Dyn creates a dynamic fragment whose content is the single node render
// returns. A nil result renders nothing.
func Dyn(render func() *Node) *Node {
	return &Node{Kind: KindDynamic, Render: func() []*Node {
		if n := render(); n != nil {
			return []*Node{n}
		}
		return nil
	}}
}

// DynList creates a dynamic fragment with any number of children.
func DynList(render func() []*Node) *Node {
	return &Node{Kind: KindDynamic, Render: render}
}

// Expand runs a dynamic fragment's render function and drops nil entries.
func (n *Node) Expand() []*Node {
	if n.Render == nil {
		return nil
	}
	out := n.Render()
	kept := out[:0:0]
	for _, c := range out {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return kept
}

// If returns node when cond is true, nil otherwise.
func If(cond bool, node *Node) *Node {
	if cond {
		return node
	}
	return nil
}

// IfElse returns ifTrue when cond is true, ifFalse otherwise.
func IfElse(cond bool, ifTrue, ifFalse *Node) *Node {
	if cond {
		return ifTrue
	}
	return ifFalse
}

// Map builds one node per item.
func Map[T any](items []T, fn func(int, T) *Node) []*Node {
	out := make([]*Node, 0, len(items))
	for i, item := range items {
		out = append(out, fn(i, item))
	}
	return out
}
