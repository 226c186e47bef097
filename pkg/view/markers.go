package view

import "strconv"

// Markup conventions shared by the server renderer and the client hydrator.
const (
	// HIDAttr carries an element's hydration ID.
	HIDAttr = "data-hid"

	// EventAttrPrefix prefixes the marker written for each handled event,
	// for example data-on-click.
	EventAttrPrefix = "data-on-"

	// TextSeparator is the data of the comment written between two adjacent
	// non-empty text nodes so that an HTML parser keeps them apart.
	TextSeparator = "|"
)

// HID formats the n-th hydration ID. IDs are assigned from 1 in pre-order
// to every element and dynamic fragment.
func HID(n int) string {
	return "h" + strconv.Itoa(n)
}

// OpenMarker returns the data of the comment that opens a dynamic fragment.
func OpenMarker(hid string) string { return "[" + hid }

// CloseMarker returns the data of the comment that closes a dynamic fragment.
func CloseMarker(hid string) string { return "]" + hid }

