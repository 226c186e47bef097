package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed, mutable document.
type Document struct {
	Root    *Node
	created int
}

// Parse parses a complete HTML document.
func Parse(r io.Reader) (*Document, error) {
	hn, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	d := &Document{}
	d.Root = d.convert(hn)
	return d, nil
}

// ParseFragment parses markup as the content of a <body> and returns a
// document whose root is that body element.
func ParseFragment(markup string) (*Document, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	d := &Document{}
	body := &Node{Type: ElementNode, Tag: "body", doc: d}
	for _, hn := range nodes {
		if c := d.convert(hn); c != nil {
			body.AppendChild(c)
		}
	}
	d.Root = body
	return d, nil
}

func (d *Document) convert(hn *html.Node) *Node {
	n := &Node{doc: d}
	switch hn.Type {
	case html.DocumentNode:
		n.Type = DocumentNode
	case html.ElementNode:
		n.Type = ElementNode
		n.Tag = hn.Data
		for _, a := range hn.Attr {
			key := a.Key
			if a.Namespace != "" {
				key = a.Namespace + ":" + key
			}
			n.attrs = append(n.attrs, Attr{Key: key, Val: a.Val})
		}
	case html.TextNode:
		n.Type = TextNode
		n.Data = hn.Data
	case html.CommentNode:
		n.Type = CommentNode
		n.Data = hn.Data
	default:
		// Doctype and raw nodes carry nothing the hydrator needs.
		return nil
	}
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if cn := d.convert(c); cn != nil {
			n.AppendChild(cn)
		}
	}
	return n
}

// Created returns how many nodes were created after parsing.
func (d *Document) Created() int { return d.created }

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string) *Node {
	d.created++
	return &Node{Type: ElementNode, Tag: tag, doc: d}
}

// CreateText creates a detached text node.
func (d *Document) CreateText(data string) *Node {
	d.created++
	return &Node{Type: TextNode, Data: data, doc: d}
}

// CreateComment creates a detached comment node.
func (d *Document) CreateComment(data string) *Node {
	d.created++
	return &Node{Type: CommentNode, Data: data, doc: d}
}

// GetElementByID returns the first element whose id attribute is id.
func (d *Document) GetElementByID(id string) *Node {
	return d.Root.Find(func(n *Node) bool {
		if n.Type != ElementNode {
			return false
		}
		v, ok := n.Attr("id")
		return ok && v == id
	})
}

// Body returns the <body> element, or the root when it is one.
func (d *Document) Body() *Node {
	return d.Root.Find(func(n *Node) bool { return n.Type == ElementNode && n.Tag == "body" })
}

// InnerHTML serializes n's children.
func (n *Node) InnerHTML() string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c.toHTML())
	}
	return b.String()
}

// OuterHTML serializes n.
func (n *Node) OuterHTML() string {
	var b strings.Builder
	_ = html.Render(&b, n.toHTML())
	return b.String()
}

func (n *Node) toHTML() *html.Node {
	hn := &html.Node{}
	switch n.Type {
	case DocumentNode:
		hn.Type = html.DocumentNode
	case ElementNode:
		hn.Type = html.ElementNode
		hn.Data = n.Tag
		hn.DataAtom = atom.Lookup([]byte(n.Tag))
		for _, a := range n.attrs {
			hn.Attr = append(hn.Attr, html.Attribute{Key: a.Key, Val: a.Val})
		}
	case TextNode:
		hn.Type = html.TextNode
		hn.Data = n.Data
	case CommentNode:
		hn.Type = html.CommentNode
		hn.Data = n.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		hn.AppendChild(c.toHTML())
	}
	return hn
}
