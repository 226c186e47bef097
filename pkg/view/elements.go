package view

var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// IsVoidElement returns true if the tag cannot have children.
func IsVoidElement(tag string) bool {
	return voidElements[tag]
}

// El creates an element. Arguments can be nil, Attr, []Attr, *Node, []*Node
// or a string, which becomes a text child. Anything else panics.
func El(tag string, args ...any) *Node {
	n := &Node{Kind: KindElement, Tag: tag, Attrs: make(Attrs)}
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case Attr:
			n.Attrs.set(v)
		case []Attr:
			for _, a := range v {
				n.Attrs.set(a)
			}
		case *Node:
			if v != nil {
				n.Children = append(n.Children, v)
			}
		case []*Node:
			for _, c := range v {
				if c != nil {
					n.Children = append(n.Children, c)
				}
			}
		case string:
			n.Children = append(n.Children, Text(v))
		default:
			panic("view: unsupported argument type for El")
		}
	}
	return n
}

func Div(args ...any) *Node { return El("div", args...) }
func Span(args ...any) *Node { return El("span", args...) }
func P(args ...any) *Node { return El("p", args...) }
func H1(args ...any) *Node { return El("h1", args...) }
func H2(args ...any) *Node { return El("h2", args...) }
func Button(args ...any) *Node { return El("button", args...) }
func A(args ...any) *Node { return El("a", args...) }
func Strong(args ...any) *Node { return El("strong", args...) }
func Section(args ...any) *Node { return El("section", args...) }
func Main(args ...any) *Node { return El("main", args...) }
func Header(args ...any) *Node { return El("header", args...) }
func Ul(args ...any) *Node { return El("ul", args...) }
func Li(args ...any) *Node { return El("li", args...) }
func Input(args ...any) *Node { return El("input", args...) }
func Br() *Node { return El("br") }
