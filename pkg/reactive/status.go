package reactive

// Status describes the connection the store is synchronized over.
type Status uint8

const (
	// Connecting is the status of a new store: no state update has been
	// exchanged yet. Server-rendered pages carry it so the hydrated page
	// starts from the same markup.
	Connecting Status = iota
	// Online means state updates are flowing.
	Online
	// Reconnecting means the connection was lost and a redial is pending.
	Reconnecting
	// Offline means the connection is gone and no redial will be made.
	Offline
	// ReloadRequired means the page no longer matches its view, usually
	// after a hydration mismatch, and only a reload recovers it.
	ReloadRequired
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	case Reconnecting:
		return "reconnecting"
	case Offline:
		return "offline"
	case ReloadRequired:
		return "reload-required"
	default:
		return "unknown"
	}
}
