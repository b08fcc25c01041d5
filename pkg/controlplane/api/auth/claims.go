// Package auth issues and validates the bearer tokens that protect the
// management API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the purpose recorded in the "token_type" claim.
type TokenType string

// TokenTypeAccess is the only type issued. Validation still checks it.
const TokenTypeAccess TokenType = "access"

// Claims are the claims of an API token. The subject is the username.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"uid"`
	Username  string    `json:"username"`
	Source    string    `json:"source,omitempty"` // "config" or "cli"
	TokenType TokenType `json:"token_type"`
}

func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}
