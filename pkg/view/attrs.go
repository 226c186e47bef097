package view

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Attr is a single attribute or event handler.
type Attr struct {
	Key   string
	Value any
}

// Attrs holds an element's attributes and event handlers.
type Attrs map[string]any

func (a Attrs) set(attr Attr) {
	if attr.Key == "" {
		return
	}
	a[attr.Key] = attr.Value
}

// Attribute creates an arbitrary attribute.
func Attribute(key string, value any) Attr { return Attr{Key: key, Value: value} }

// ID sets the id attribute.
func ID(id string) Attr { return Attribute("id", id) }

// Class sets the class attribute, joining multiple classes with spaces.
func Class(classes ...string) Attr { return Attribute("class", strings.Join(classes, " ")) }

// Style sets the style attribute.
func Style(style string) Attr { return Attribute("style", style) }

// Data creates a data-* attribute.
func Data(key, value string) Attr { return Attribute("data-"+key, value) }

func Href(url string) Attr { return Attribute("href", url) }
func Type(t string) Attr { return Attribute("type", t) }
func Title(title string) Attr { return Attribute("title", title) }
func Role(role string) Attr { return Attribute("role", role) }
func AriaLabel(label string) Attr { return Attribute("aria-label", label) }
func AriaLive(mode string) Attr { return Attribute("aria-live", mode) }
func Disabled(disabled bool) Attr { return Attribute("disabled", disabled) }
func Hidden(hidden bool) Attr { return Attribute("hidden", hidden) }

// booleanAttrs render as a bare name when true and are omitted when false.
var booleanAttrs = map[string]bool{
	"async":     true,
	"autofocus": true,
	"checked":   true,
	"controls":  true,
	"defer":     true,
	"disabled":  true,
	"hidden":    true,
	"multiple":  true,
	"open":      true,
	"readonly":  true,
	"required":  true,
	"selected":  true,
}

// MarkupAttr is an attribute as it appears in markup.
type MarkupAttr struct {
	Key   string
	Value string
}

// MarkupAttrs returns the attributes that n contributes to markup, sorted by
// key. Event handlers and internal keys are excluded, keys are lowercased the
// way an HTML parser reports them, and empty values are dropped. The server
// renderer writes exactly this list and the hydrator compares against it.
func (n *Node) MarkupAttrs() []MarkupAttr {
	if n == nil || n.Kind != KindElement || len(n.Attrs) == 0 {
		return nil
	}
	out := make([]MarkupAttr, 0, len(n.Attrs))
	for key, value := range n.Attrs {
		if strings.HasPrefix(key, "_") || key == "key" || isHandler(key, value) {
			continue
		}
		switch key {
		case "className":
			key = "class"
		case "htmlFor":
			key = "for"
		}
		key = strings.ToLower(key)

		if booleanAttrs[key] {
			if b, ok := value.(bool); ok {
				if b {
					out = append(out, MarkupAttr{Key: key})
				}
				continue
			}
		}
		if s := attrToString(value); s != "" {
			out = append(out, MarkupAttr{Key: key, Value: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func attrToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
