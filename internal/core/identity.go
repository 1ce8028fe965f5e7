package core

import "context"

// Identity is the authenticated user behind a connection or request.
type Identity struct {
	UserID   int64
	Username string
}

// Verifier validates a bearer credential and resolves the identity it carries.
// Implementations return an error wrapping ErrUnauthorized for bad credentials.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}
