package view

import (
	"sort"
	"strings"
)

// Event is delivered to a Handler.
type Event struct {
	Type  string // "click", "input", ...
	Value string // Current value for input-like targets
}

// Handler handles a DOM event.
type Handler func(Event)

// On attaches h to the named event.
func On(event string, h Handler) Attr {
	return Attr{Key: "on" + strings.ToLower(event), Value: h}
}

// OnClick handles click events.
func OnClick(fn func()) Attr {
	return On("click", func(Event) { fn() })
}

// OnInput handles input events with the target's new value.
func OnInput(fn func(value string)) Attr {
	return On("input", func(e Event) { fn(e.Value) })
}

// OnChange handles change events with the target's committed value.
func OnChange(fn func(value string)) Attr {
	return On("change", func(e Event) { fn(e.Value) })
}

func isHandler(key string, value any) bool {
	if !strings.HasPrefix(key, "on") {
		return false
	}
	switch value.(type) {
	case Handler, func(Event), func():
		return true
	}
	return false
}

// Events returns the sorted names of the events n handles.
func (n *Node) Events() []string {
	if n == nil || n.Kind != KindElement {
		return nil
	}
	var events []string
	for key, value := range n.Attrs {
		if isHandler(key, value) {
			events = append(events, strings.ToLower(key[2:]))
		}
	}
	sort.Strings(events)
	return events
}

// Handler returns the handler for event, or nil.
func (n *Node) Handler(event string) Handler {
	if n == nil || n.Kind != KindElement {
		return nil
	}
	for key, value := range n.Attrs {
		if !isHandler(key, value) || strings.ToLower(key[2:]) != event {
			continue
		}
		switch h := value.(type) {
		case Handler:
			return h
		case func(Event):
			return h
		case func():
			return func(Event) { h() }
		}
	}
	return nil
}
