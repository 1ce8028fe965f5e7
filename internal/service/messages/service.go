package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/store"
)

// Common errors for message operations.
var (
	ErrEmptyContent      = errors.New("content is required")
	ErrContentTooLong    = errors.New("content too long")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrReceiverNotFound  = errors.New("receiver not found")
	ErrInvalidTarget     = errors.New("invalid message target")
	ErrEmptyChannelName  = errors.New("channel name is required")
	ErrChannelNameExists = errors.New("channel already exists")
)

// Router pushes persisted messages to connected clients.
type Router interface {
	Route(ctx context.Context, msg *store.Message) error
}

// Options tunes the service.
type Options struct {
	// MaxContentBytes caps message content. Zero disables the check.
	MaxContentBytes int
	// StoreTimeout bounds each store call. Zero means no extra deadline.
	StoreTimeout time.Duration
}

// Service provides channel and message business logic.
// Writes are persisted first and then handed to the router for live delivery.
type Service struct {
	store  store.Store
	router Router
	opts   Options
	log    *zerolog.Logger
}

// New creates a new message service. router may be nil, in which case nothing is pushed.
func New(st store.Store, router Router, opts Options, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:  st,
		router: router,
		opts:   opts,
		log:    logger,
	}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *Service) checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if s.opts.MaxContentBytes > 0 && len(content) > s.opts.MaxContentBytes {
		return ErrContentTooLong
	}
	return nil
}

// SendChannelMessage persists a channel message and pushes it to every online user.
func (s *Service) SendChannelMessage(ctx context.Context, senderID, channelID int64, content string) (*store.Message, error) {
	if err := s.checkContent(content); err != nil {
		return nil, err
	}
	if channelID <= 0 {
		return nil, ErrInvalidTarget
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.store.GetChannelByID(sctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}

	msg := &store.Message{
		Content:   content,
		Type:      store.MessageTypeChannel,
		SenderID:  senderID,
		ChannelID: &channelID,
	}
	return s.persistAndRoute(ctx, sctx, msg)
}

// SendDirectMessage persists a direct message and pushes it to sender and receiver when online.
func (s *Service) SendDirectMessage(ctx context.Context, senderID, receiverID int64, content string) (*store.Message, error) {
	if err := s.checkContent(content); err != nil {
		return nil, err
	}
	if receiverID <= 0 {
		return nil, ErrInvalidTarget
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.store.GetUserByID(sctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("get receiver: %w", err)
	}

	msg := &store.Message{
		Content:    content,
		Type:       store.MessageTypeDirect,
		SenderID:   senderID,
		ReceiverID: &receiverID,
	}
	return s.persistAndRoute(ctx, sctx, msg)
}

func (s *Service) persistAndRoute(ctx, sctx context.Context, msg *store.Message) (*store.Message, error) {
	if err := s.store.SaveMessage(sctx, msg); err != nil {
		if errors.Is(err, store.ErrInvalidMessage) {
			return nil, ErrInvalidTarget
		}
		return nil, fmt.Errorf("save message: %w", err)
	}

	// Re-read so the pushed copy carries the sender username.
	saved, err := s.store.GetMessage(sctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("reload message: %w", err)
	}

	if s.router != nil {
		if err := s.router.Route(ctx, saved); err != nil {
			// The message is durable; live delivery is best effort.
			s.log.Warn().Err(err).Int64("message_id", saved.ID).Msg("route message")
		}
	}

	return saved, nil
}

// ChannelHistory returns all messages of a channel in insertion order.
func (s *Service) ChannelHistory(ctx context.Context, channelID int64) ([]*store.Message, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	msgs, err := s.store.ListChannelMessages(sctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	return msgs, nil
}

// DirectHistory returns the conversation between userID and otherUserID in insertion order.
func (s *Service) DirectHistory(ctx context.Context, userID, otherUserID int64) ([]*store.Message, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	msgs, err := s.store.ListDirectMessages(sctx, userID, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return msgs, nil
}

// ListChannels returns all channels, newest first.
func (s *Service) ListChannels(ctx context.Context) ([]*store.Channel, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	channels, err := s.store.ListChannels(sctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// CreateChannel creates a named channel. An empty description is stored as absent.
func (s *Service) CreateChannel(ctx context.Context, name string, description string) (*store.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyChannelName
	}

	var desc *string
	if d := strings.TrimSpace(description); d != "" {
		desc = &d
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ch, err := s.store.CreateChannel(sctx, name, desc)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrChannelNameExists
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

// EnsureDefaultChannel creates the named channel when no channel exists yet.
// It reports whether a channel was created.
func (s *Service) EnsureDefaultChannel(ctx context.Context, name, description string) (bool, error) {
	channels, err := s.ListChannels(ctx)
	if err != nil {
		return false, err
	}
	if len(channels) > 0 {
		return false, nil
	}

	ch, err := s.CreateChannel(ctx, name, description)
	if err != nil {
		if errors.Is(err, ErrChannelNameExists) {
			return false, nil
		}
		return false, err
	}
	s.log.Info().Int64("channel_id", ch.ID).Str("name", ch.Name).Msg("default channel created")
	return true, nil
}
