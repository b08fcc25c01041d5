package models

import "errors"

// Common errors for credential store operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
	ErrUserDisabled  = errors.New("user account is disabled")

	// ErrNoCredentials is returned when a user carries neither a password
	// nor an NT hash.
	ErrNoCredentials = errors.New("user has no credentials")

	// ErrInvalidNTHash is returned for an NT hash that is not 32 hex digits.
	ErrInvalidNTHash = errors.New("nt hash must be 32 hex digits")
)
