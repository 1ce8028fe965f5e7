package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("conflict")
	// ErrInvalidMessage is returned when a message breaks the target invariant.
	ErrInvalidMessage = errors.New("invalid message")
)

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Channel represents a named group conversation.
type Channel struct {
	ID          int64
	Name        string
	Description *string
	CreatedAt   time.Time
}

// MessageType defines where a message is addressed.
type MessageType string

const (
	MessageTypeChannel MessageType = "channel"
	MessageTypeDirect  MessageType = "direct"
)

// Message represents a persisted chat message.
// Exactly one of ChannelID and ReceiverID is set, as selected by Type.
type Message struct {
	ID         int64
	Content    string
	Type       MessageType
	SenderID   int64
	ReceiverID *int64
	ChannelID  *int64
	CreatedAt  time.Time

	// SenderUsername is resolved on read and is not stored with the message.
	SenderUsername string
}

// Validate checks the channel/direct target invariant.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeChannel:
		if m.ChannelID == nil || m.ReceiverID != nil {
			return ErrInvalidMessage
		}
	case MessageTypeDirect:
		if m.ReceiverID == nil || m.ChannelID != nil {
			return ErrInvalidMessage
		}
	default:
		return ErrInvalidMessage
	}
	if m.SenderID == 0 {
		return ErrInvalidMessage
	}
	return nil
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// ChannelStore handles channel persistence.
type ChannelStore interface {
	// CreateChannel creates a new channel. Duplicate names yield ErrConflict.
	CreateChannel(ctx context.Context, name string, description *string) (*Channel, error)

	// GetChannelByID retrieves a channel by ID.
	GetChannelByID(ctx context.Context, id int64) (*Channel, error)

	// ListChannels lists all channels, newest first.
	ListChannels(ctx context.Context) ([]*Channel, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message with its sender username resolved.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListChannelMessages returns channel messages in insertion order.
	ListChannelMessages(ctx context.Context, channelID int64) ([]*Message, error)

	// ListDirectMessages returns the direct conversation between two users in insertion order.
	ListDirectMessages(ctx context.Context, userID, otherUserID int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
