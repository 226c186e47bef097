// Package dom is the client's live document model.
//
// A Document is parsed from server markup with golang.org/x/net/html and then
// mutated only through its methods, which lets the hydrator prove it attached
// to existing nodes: Created counts every node made after parsing.
//
// Event listeners are plain Go functions keyed by event type. Dispatch calls
// the target's listener and bubbles to its ancestors.
package dom
