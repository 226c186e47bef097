package server

import "errors"

var (
	// ErrUnknownApp is returned when rendering an app that is not registered.
	ErrUnknownApp = errors.New("server: unknown app")

	// ErrDuplicateApp is returned by New when two apps share a name or path.
	ErrDuplicateApp = errors.New("server: duplicate app")

	// ErrInvalidApp is returned by New for an app without a name or view.
	ErrInvalidApp = errors.New("server: invalid app")
)
