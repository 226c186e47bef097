// Package hydrate attaches a client view to server rendered markup and keeps
// it up to date afterwards.
//
// Hydrate walks the view tree and the live document in lockstep, pre-order,
// claiming existing nodes instead of creating new ones. Elements must agree
// on tag, hydration ID and rendered attributes; text must agree exactly.
// The first divergence stops the walk with a *MismatchError and nothing
// after that point is attached.
//
// Each dynamic fragment becomes a store computation. When a cell it read
// changes, the fragment re-renders and the patcher updates the marker range
// in place: nodes of the same kind and tag are updated, anything else is
// replaced by the smallest subtree that differs.
package hydrate
