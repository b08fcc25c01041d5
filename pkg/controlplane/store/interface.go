// Package store provides the credential store behind SMB authentication.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL
package store

import (
	"context"
	"time"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// Store is the full credential store: the read side the authenticator
// needs plus the management operations used by the CLI and the config
// loader.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Store interface {
	models.UserStore

	// CreateUser creates a new user. The ID is generated if empty.
	// Returns models.ErrDuplicateUser if the username is taken.
	CreateUser(ctx context.Context, user *models.User) (string, error)

	// DeleteUser deletes a user by username.
	// Returns models.ErrUserNotFound if the user doesn't exist.
	DeleteUser(ctx context.Context, username string) error

	// UpdatePassword replaces both hashes of a user.
	UpdatePassword(ctx context.Context, username, passwordHash, ntHash string) error

	// SetEnabled enables or disables a user.
	SetEnabled(ctx context.Context, username string, enabled bool) error

	// SyncConfigUsers makes the config-sourced users match the given set:
	// listed users are created or updated, config users no longer listed
	// are removed. CLI users are never touched.
	SyncConfigUsers(ctx context.Context, users []*models.User) (SyncResult, error)

	Healthcheck(ctx context.Context) error
	Close() error
}

// SyncResult reports what SyncConfigUsers changed.
type SyncResult struct {
	Created int
	Updated int
	Removed int
	// Skipped lists config users shadowed by a CLI user of the same name.
	Skipped []string
}

// LastLoginRecorder is the subset of Store the authenticator writes to.
type LastLoginRecorder interface {
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
}
