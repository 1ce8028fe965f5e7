package core

// DefaultEventBuffer is the outbound queue size used when none is configured.
const DefaultEventBuffer = 32

// Client is a connection handle as seen by the core layer.
// Handles are compared by pointer identity.
type Client struct {
	ID       string
	UserID   int64
	Username string
	Events   chan *Event
}

// NewClient constructs a client with an initialized outbound queue.
func NewClient(id string, identity Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Client{
		ID:       id,
		UserID:   identity.UserID,
		Username: identity.Username,
		Events:   make(chan *Event, buffer),
	}
}

// Send queues an event without blocking. It reports false when the queue is full.
func (c *Client) Send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
