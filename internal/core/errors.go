package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors sent over the wire.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal"
)

var (
	// ErrUnauthorized is returned when a credential is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBadRequest is returned for malformed or unknown inbound commands.
	ErrBadRequest = errors.New("bad request")
	// ErrInvalidTransition is returned when a session operation is not allowed in its current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrHubStopped is returned when the hub loop is no longer running.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError with the given code.
func NewError(code, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorFor maps err to the wire error a client should see.
func ErrorFor(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrUnauthorized):
		return NewError(ErrCodeUnauthorized, "unauthorized")
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidTransition):
		return NewError(ErrCodeBadRequest, "%s", err.Error())
	default:
		return NewError(ErrCodeInternal, "internal error")
	}
}
