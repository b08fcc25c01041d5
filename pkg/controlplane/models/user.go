// Package models holds the persistent records of the control plane.
package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// UserSource records where a user record came from.
type UserSource string

const (
	// SourceConfig marks users declared in the configuration file. They are
	// re-applied on every load and reload.
	SourceConfig UserSource = "config"
	// SourceCLI marks users created with `dittosmb user add`.
	SourceCLI UserSource = "cli"
)

// User is an account that may authenticate over SMB.
//
// Only the NT hash takes part in NTLM; the bcrypt hash is kept so that
// passwords set through the CLI can be verified without the NT hash.
// Config users given as a bare nt_hash have no PasswordHash. Enabled has no
// column default, so a zero User is stored disabled.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Domain       string     `gorm:"size:255" json:"domain,omitempty"`
	PasswordHash string     `json:"-"`
	NTHash       string     `gorm:"size:32" json:"-"`
	Enabled      bool       `gorm:"not null" json:"enabled"`
	Source       string     `gorm:"size:16;default:cli" json:"source"`
	DisplayName  string     `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// AllModels lists the records migrated when the store opens.
func AllModels() []any {
	return []any{&User{}}
}

// NormalizeUsername folds a user name for lookup. SMB user names are
// case-insensitive.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GetDisplayName returns the display name, or username if display name is not set.
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// GetNTHash decodes the stored NT hash; false when absent or malformed.
func (u *User) GetNTHash() ([16]byte, bool) {
	h, err := ParseNTHash(u.NTHash)
	return h, err == nil
}

func (u *User) SetNTHashFromPassword(password string) {
	h := ComputeNTHash(password)
	u.NTHash = hex.EncodeToString(h[:])
}

// SetNTHashHex stores a hex NT hash after validating it.
func (u *User) SetNTHashHex(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, err := ParseNTHash(s); err != nil {
		return err
	}
	u.NTHash = s
	return nil
}

// Validate checks if the user has valid configuration.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if strings.ContainsAny(u.Username, `\/@`) {
		return fmt.Errorf("username %q must not contain a domain separator", u.Username)
	}
	if u.NTHash == "" {
		return ErrNoCredentials
	}
	if _, ok := u.GetNTHash(); !ok {
		return ErrInvalidNTHash
	}
	return nil
}
