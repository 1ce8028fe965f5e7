package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionState is a step in the connection lifecycle.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionOptions tunes a session.
type SessionOptions struct {
	// AuthTimeout bounds the verifier call during the handshake.
	AuthTimeout time.Duration
	// EventBuffer is the size of the outbound queue.
	EventBuffer int
}

// Session drives one connection through Connecting, Authenticated, Active and Closed.
// Closed is terminal; a reconnect needs a new Session.
type Session struct {
	mu       sync.Mutex
	state    SessionState
	connID   string
	client   *Client
	hub      *Hub
	verifier Verifier
	opts     SessionOptions
	log      *zerolog.Logger
}

// NewSession constructs a session in the Connecting state.
func NewSession(hub *Hub, verifier Verifier, connID string, opts SessionOptions, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 5 * time.Second
	}
	return &Session{
		state:    StateConnecting,
		connID:   connID,
		hub:      hub,
		verifier: verifier,
		opts:     opts,
		log:      logger,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the connection handle, or nil before authentication.
func (s *Session) Client() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Open verifies credential and, on success, registers the session in the hub.
// Any failure leaves the session Closed without a presence entry.
func (s *Session) Open(ctx context.Context, credential string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return nil, fmt.Errorf("open in state %s: %w", s.state, ErrInvalidTransition)
	}

	if credential == "" {
		s.state = StateClosed
		return nil, fmt.Errorf("missing credential: %w", ErrUnauthorized)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.opts.AuthTimeout)
	identity, err := s.verifier.Verify(verifyCtx, credential)
	cancel()
	if err != nil {
		s.state = StateClosed
		s.log.Debug().Err(err).Str("conn_id", s.connID).Msg("handshake rejected")
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("verify credential: %w", err)
	}

	s.client = NewClient(s.connID, identity, s.opts.EventBuffer)
	s.state = StateAuthenticated

	if err := s.hub.RegisterClient(ctx, s.client); err != nil {
		s.state = StateClosed
		return nil, fmt.Errorf("register client: %w", err)
	}
	s.state = StateActive

	return s.client, nil
}

// Handle processes an inbound command from an active session.
func (s *Session) Handle(cmd Command) error {
	s.mu.Lock()
	state, client := s.state, s.client
	s.mu.Unlock()

	if state != StateActive {
		return fmt.Errorf("handle in state %s: %w", state, ErrInvalidTransition)
	}

	switch cmd.Kind {
	case CommandRequestPresence:
		return s.hub.RequestPresence(client)
	case CommandClientMessage:
		// Informational only. Messages are persisted through the HTTP write path.
		s.log.Debug().
			Int64("user_id", client.UserID).
			Str("conn_id", client.ID).
			Int("length", len(cmd.Text)).
			Msg("client message received")
		return nil
	default:
		return ErrBadRequest
	}
}

// Close moves the session to Closed and removes its presence entry if it is still current.
// Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	wasActive := s.state == StateActive
	s.state = StateClosed
	if wasActive {
		s.hub.UnregisterClient(s.client)
	}
}
