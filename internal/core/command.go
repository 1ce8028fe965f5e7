package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRequestPresence asks for the current presence list, sent to the caller only.
	CommandRequestPresence CommandKind = iota
	// CommandClientMessage is an informational chat frame; it is logged, not persisted.
	CommandClientMessage
)

// Command represents an action requested by a client over an active session.
type Command struct {
	Kind CommandKind
	Text string
}
