package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain discards queued events.
func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// expectNoEvent fails if an event of kind arrives within wait.
func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-timer.C:
			return
		}
	}
}

// syncHub waits until every request queued on the hub before it has been handled.
func syncHub(t *testing.T, hub *Hub) {
	t.Helper()

	sentinel := NewClient("sync", Identity{UserID: -1, Username: "sync"}, 1)
	if err := hub.RequestPresence(sentinel); err != nil {
		t.Fatalf("sync hub: %v", err)
	}
	mustEvent(t, sentinel.Events, EventPresence)
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(NewRegistry(), nil, nil)
	go hub.Run(ctx)
	return hub
}

type stubVerifier struct {
	tokens map[string]Identity
	delay  time.Duration
}

func (v *stubVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	}
	id, ok := v.tokens[credential]
	if !ok {
		return Identity{}, fmt.Errorf("unknown token: %w", ErrUnauthorized)
	}
	return id, nil
}
