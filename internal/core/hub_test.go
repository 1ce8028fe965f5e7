package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/chatgenie-server/internal/store"
)

func channelMessage(id, sender, channel int64, text string) *store.Message {
	return &store.Message{
		ID:             id,
		Content:        text,
		Type:           store.MessageTypeChannel,
		SenderID:       sender,
		ChannelID:      &channel,
		SenderUsername: "alice",
		CreatedAt:      time.Now(),
	}
}

func directMessage(id, sender, receiver int64, text string) *store.Message {
	return &store.Message{
		ID:             id,
		Content:        text,
		Type:           store.MessageTypeDirect,
		SenderID:       sender,
		ReceiverID:     &receiver,
		SenderUsername: "alice",
		CreatedAt:      time.Now(),
	}
}

func connect(t *testing.T, hub *Hub, id string, userID int64, name string) *Client {
	t.Helper()

	c := NewClient(id, Identity{UserID: userID, Username: name}, 16)
	if err := hub.RegisterClient(context.Background(), c); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return c
}

func TestHubPresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")
	ev := mustEvent(t, alice.Events, EventPresence)
	if len(ev.Presence) != 1 || ev.Presence[0].Username != "alice" {
		t.Fatalf("unexpected presence after alice joined: %+v", ev.Presence)
	}

	bob := connect(t, hub, "b", 2, "bob")
	ev = mustEvent(t, alice.Events, EventPresence)
	if len(ev.Presence) != 2 {
		t.Fatalf("alice expected 2 online users, got %+v", ev.Presence)
	}
	ev = mustEvent(t, bob.Events, EventPresence)
	if len(ev.Presence) != 2 {
		t.Fatalf("bob expected 2 online users, got %+v", ev.Presence)
	}

	hub.UnregisterClient(bob)
	ev = mustEvent(t, alice.Events, EventPresence)
	if len(ev.Presence) != 1 || ev.Presence[0].UserID != 1 {
		t.Fatalf("unexpected presence after bob left: %+v", ev.Presence)
	}
}

func TestHubRequestPresenceRepliesToCallerOnly(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")
	bob := connect(t, hub, "b", 2, "bob")
	syncHub(t, hub)
	drain(alice.Events)
	drain(bob.Events)

	if err := hub.RequestPresence(alice); err != nil {
		t.Fatalf("request presence: %v", err)
	}
	ev := mustEvent(t, alice.Events, EventPresence)
	if len(ev.Presence) != 2 {
		t.Fatalf("expected 2 entries, got %+v", ev.Presence)
	}
	expectNoEvent(t, bob.Events, EventPresence, 100*time.Millisecond)
}

func TestHubChannelMessageReachesEveryActiveConnection(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")
	bob := connect(t, hub, "b", 2, "bob")

	msg := channelMessage(10, 1, 1, "hi")
	if err := hub.Route(context.Background(), msg); err != nil {
		t.Fatalf("route: %v", err)
	}

	for name, c := range map[string]*Client{"alice": alice, "bob": bob} {
		ev := mustEvent(t, c.Events, EventMessage)
		if ev.Message != msg {
			t.Fatalf("%s received unexpected message: %+v", name, ev.Message)
		}
	}

	// A late joiner does not receive messages routed before it connected.
	carol := connect(t, hub, "c", 3, "carol")
	syncHub(t, hub)
	expectNoEvent(t, carol.Events, EventMessage, 100*time.Millisecond)
}

func TestHubDirectMessageReachesOnlyBothParties(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")
	bob := connect(t, hub, "b", 2, "bob")
	carol := connect(t, hub, "c", 3, "carol")

	msg := directMessage(11, 1, 2, "psst")
	if err := hub.Route(context.Background(), msg); err != nil {
		t.Fatalf("route: %v", err)
	}

	fromAlice := mustEvent(t, alice.Events, EventMessage)
	fromBob := mustEvent(t, bob.Events, EventMessage)
	if fromAlice != fromBob {
		t.Fatalf("expected identical payload for both parties")
	}
	expectNoEvent(t, carol.Events, EventMessage, 100*time.Millisecond)
}

func TestHubDirectMessageToOfflineUserOnlyEchoesSender(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")

	if err := hub.Route(context.Background(), directMessage(12, 1, 2, "are you there")); err != nil {
		t.Fatalf("route: %v", err)
	}
	ev := mustEvent(t, alice.Events, EventMessage)
	if ev.Message.Content != "are you there" {
		t.Fatalf("unexpected message: %+v", ev.Message)
	}
}

func TestHubDirectMessageToSelfIsPushedOnce(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")

	if err := hub.Route(context.Background(), directMessage(13, 1, 1, "note to self")); err != nil {
		t.Fatalf("route: %v", err)
	}
	mustEvent(t, alice.Events, EventMessage)
	syncHub(t, hub)
	expectNoEvent(t, alice.Events, EventMessage, 100*time.Millisecond)
}

func TestHubRouteTwicePushesTwice(t *testing.T) {
	hub := startHub(t)

	alice := connect(t, hub, "a", 1, "alice")
	msg := channelMessage(14, 1, 1, "again")

	for i := 0; i < 2; i++ {
		if err := hub.Route(context.Background(), msg); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	mustEvent(t, alice.Events, EventMessage)
	mustEvent(t, alice.Events, EventMessage)
}

func TestHubRouteRejectsInvalidMessage(t *testing.T) {
	hub := startHub(t)

	err := hub.Route(context.Background(), &store.Message{ID: 1, Type: store.MessageTypeChannel, SenderID: 1})
	if err == nil {
		t.Fatalf("expected error for channel message without channel id")
	}
}

func TestHubStaleDisconnectKeepsNewerConnection(t *testing.T) {
	hub := startHub(t)

	old := connect(t, hub, "old", 1, "alice")
	current := connect(t, hub, "new", 1, "alice")
	hub.UnregisterClient(old)
	syncHub(t, hub)

	entry, ok := hub.Registry().Get(1)
	if !ok || entry.Client != current {
		t.Fatalf("expected newer connection to stay registered, got %+v (ok=%v)", entry, ok)
	}

	drain(old.Events)
	msg := channelMessage(15, 1, 1, "hello")
	if err := hub.Route(context.Background(), msg); err != nil {
		t.Fatalf("route: %v", err)
	}
	mustEvent(t, current.Events, EventMessage)
	expectNoEvent(t, old.Events, EventMessage, 100*time.Millisecond)
}

func TestHubSlowConsumerDoesNotBlock(t *testing.T) {
	hub := startHub(t)

	slow := NewClient("slow", Identity{UserID: 1, Username: "slow"}, 1)
	if err := hub.RegisterClient(context.Background(), slow); err != nil {
		t.Fatalf("register: %v", err)
	}
	fast := connect(t, hub, "fast", 2, "fast")

	for i := int64(0); i < 5; i++ {
		if err := hub.Route(context.Background(), channelMessage(100+i, 2, 1, "spam")); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		mustEvent(t, fast.Events, EventMessage)
	}
}

func TestHubStoppedReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient("a", Identity{UserID: 1, Username: "alice"}, 1)
	if err := hub.RegisterClient(context.Background(), c); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	hub.UnregisterClient(c)
}
