// Package auth defines the identity surface the relay consumes. The relay
// never manages credentials itself: it resolves opaque bearer tokens
// through a Verifier and binds the resulting user to the connection and to
// every session created over it.
package auth

import (
	"context"
	"errors"
)

// User identifies an authenticated account.
type User struct {
	ID       int64
	Username string
}

// Verifier resolves an opaque bearer token to its owning user.
// Implementations must return ErrInvalidToken for tokens that match no
// user, reserving other errors for infrastructure failures.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (User, error)
}

// ErrInvalidToken is returned when a token matches no user.
var ErrInvalidToken = errors.New("invalid token")
