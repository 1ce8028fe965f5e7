package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello    = "hello"
	InboundTypeGetUsers = "getUsers"
	InboundTypeMessage  = "message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventUsers   = "users"
	EventMessage = "message"
)

// HelloData carries the credential when it was not presented on the upgrade request.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// ClientMessageData is an informational chat frame from the client.
// Messages are persisted through the HTTP API, not through this frame.
type ClientMessageData struct {
	Content   string `json:"content"`
	ChannelID *int64 `json:"channelId,omitempty"`
	// ReceiverID is set for direct messages.
	ReceiverID *int64 `json:"receiverId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserEntry is one element of the users event.
type UserEntry struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

// Sender is the author summary embedded in every message.
type Sender struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// MessagePayload is a persisted message as seen by clients, both over the socket
// and in HTTP history responses. The absent target field is encoded as null.
type MessagePayload struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	SenderID   int64     `json:"senderId"`
	ReceiverID *int64    `json:"receiverId"`
	ChannelID  *int64    `json:"channelId"`
	CreatedAt  time.Time `json:"createdAt"`
	Sender     Sender    `json:"sender"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
