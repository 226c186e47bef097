// Package client is the browser-side runtime, modelled on a live document.
//
// Boot parses a server-rendered page, restores the embedded state snapshot
// and hydrates the application root. Run then drives a single event loop:
// document events, inbound messages, reconnect timers and state pushes are
// all posted to it, so the document is never mutated from two places at
// once. Connection loss marks the store Reconnecting and redials with
// exponential backoff; every successful dial starts a fresh server session.
package client
