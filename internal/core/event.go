package core

import "github.com/vovakirdan/chatgenie-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence delivers the full presence list.
	EventPresence EventKind = iota
	// EventMessage delivers a single persisted message.
	EventMessage
	// EventError notifies a client about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPresence:
		return "presence"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Presence []PresenceEntry
	Message  *store.Message
	Error    *CoreError
}
