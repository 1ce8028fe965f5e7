package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/store"
)

// Metrics receives hub observations. A nil Metrics disables them.
type Metrics interface {
	SetOnline(n int)
	ObserveDelivered(kind string)
	ObserveDropped(kind string)
	ObserveDeliveryGap()
}

type nopMetrics struct{}

func (nopMetrics) SetOnline(int)           {}
func (nopMetrics) ObserveDelivered(string) {}
func (nopMetrics) ObserveDropped(string)   {}
func (nopMetrics) ObserveDeliveryGap()     {}

type presenceRequest struct {
	client *Client
}

// Hub serializes presence changes and message fan-out.
// All registry mutations and the broadcasts that follow them run on the Run goroutine,
// one request at a time.
type Hub struct {
	registry   *Registry
	register   chan *Client
	unregister chan *Client
	presence   chan presenceRequest
	dispatch   chan *store.Message
	done       chan struct{}
	log        *zerolog.Logger
	metrics    Metrics
}

// NewHub creates a hub around registry.
func NewHub(registry *Registry, logger *zerolog.Logger, metrics Metrics) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Hub{
		registry:   registry,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		presence:   make(chan presenceRequest),
		dispatch:   make(chan *store.Message, 64),
		done:       make(chan struct{}),
		log:        logger,
		metrics:    metrics,
	}
}

// Registry exposes the presence registry for read-only callers.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run processes hub requests until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case req := <-h.presence:
			h.deliver(req.client, &Event{Kind: EventPresence, Presence: h.registry.List()})
		case msg := <-h.dispatch:
			h.route(msg)
		}
	}
}

// RegisterClient makes c the active connection for its user.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// UnregisterClient removes c if it is still the active connection for its user.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// RequestPresence sends the current presence list to c only.
func (h *Hub) RequestPresence(c *Client) error {
	select {
	case h.presence <- presenceRequest{client: c}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Route schedules live delivery of a persisted message.
// Calling Route twice for the same message pushes it twice.
func (h *Hub) Route(ctx context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case h.dispatch <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handleRegister(c *Client) {
	replaced := h.registry.Put(PresenceEntry{UserID: c.UserID, Username: c.Username, Client: c})
	if replaced != nil && replaced != c {
		// The stale connection stays open but no longer receives routed messages.
		h.log.Info().
			Int64("user_id", c.UserID).
			Str("conn_id", c.ID).
			Str("superseded_conn_id", replaced.ID).
			Msg("connection superseded")
	}
	h.log.Info().Int64("user_id", c.UserID).Str("username", c.Username).Str("conn_id", c.ID).Msg("user online")
	h.broadcastPresence()
}

func (h *Hub) handleUnregister(c *Client) {
	if !h.registry.RemoveIfCurrent(c.UserID, c) {
		h.log.Debug().Int64("user_id", c.UserID).Str("conn_id", c.ID).Msg("stale connection closed")
		return
	}
	h.log.Info().Int64("user_id", c.UserID).Str("username", c.Username).Str("conn_id", c.ID).Msg("user offline")
	h.broadcastPresence()
}

func (h *Hub) broadcastPresence() {
	entries := h.registry.List()
	h.metrics.SetOnline(len(entries))

	ev := &Event{Kind: EventPresence, Presence: entries}
	for _, entry := range entries {
		h.deliver(entry.Client, ev)
	}
}

func (h *Hub) route(msg *store.Message) {
	ev := &Event{Kind: EventMessage, Message: msg}

	switch msg.Type {
	case store.MessageTypeChannel:
		entries := h.registry.List()
		for _, entry := range entries {
			h.deliver(entry.Client, ev)
		}
		h.log.Debug().
			Int64("message_id", msg.ID).
			Int64("channel_id", *msg.ChannelID).
			Int("delivered", len(entries)).
			Msg("channel message routed")
	case store.MessageTypeDirect:
		targets := make([]*Client, 0, 2)
		for _, userID := range []int64{msg.SenderID, *msg.ReceiverID} {
			entry, ok := h.registry.Get(userID)
			if !ok {
				h.metrics.ObserveDeliveryGap()
				h.log.Debug().Int64("message_id", msg.ID).Int64("user_id", userID).Msg("direct message target offline")
				continue
			}
			if len(targets) > 0 && targets[0] == entry.Client {
				continue
			}
			targets = append(targets, entry.Client)
		}
		for _, c := range targets {
			h.deliver(c, ev)
		}
		h.log.Debug().
			Int64("message_id", msg.ID).
			Int64("receiver_id", *msg.ReceiverID).
			Int("delivered", len(targets)).
			Msg("direct message routed")
	}
}

func (h *Hub) deliver(c *Client, ev *Event) {
	kind := ev.Kind.String()
	if !c.Send(ev) {
		// Drop if slow consumer.
		h.metrics.ObserveDropped(kind)
		h.log.Warn().Int64("user_id", c.UserID).Str("conn_id", c.ID).Str("event", kind).Msg("outbound queue full, event dropped")
		return
	}
	h.metrics.ObserveDelivered(kind)
}
