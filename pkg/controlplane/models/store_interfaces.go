package models

import (
	"context"
	"time"
)

// UserStore is the read side of the credential store used by the SMB
// authenticator. Implementations must be safe for concurrent use.
type UserStore interface {
	// GetUser returns a user by username (case-insensitive).
	// Returns ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, username string) (*User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateLastLogin records a successful logon.
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
}
