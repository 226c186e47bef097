package session

import "errors"

var (
	// ErrTooManySessionsFromIP is returned when the per-IP session limit is exceeded.
	ErrTooManySessionsFromIP = errors.New("session: too many sessions from this IP address")

	// ErrManagerStopped is returned when adding to a manager that has shut down.
	ErrManagerStopped = errors.New("session: manager is stopped")

	// ErrDuplicateSession is returned when a session ID is already registered.
	ErrDuplicateSession = errors.New("session: duplicate session id")

	// ErrSessionClosed is returned by Dispatch after teardown began.
	ErrSessionClosed = errors.New("session: closed")
)
