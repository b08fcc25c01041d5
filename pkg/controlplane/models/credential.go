package models

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/dittosmb/internal/auth/ntlm"
)

// Password length limits. bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 characters")
)

func ValidatePassword(password string) error {
	switch n := len(password); {
	case n < MinPasswordLength:
		return ErrPasswordTooShort
	case n > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPasswordWithNT derives both stored credentials of a password: the
// bcrypt hash and the hex NT hash that NTLM authenticates against.
func HashPasswordWithNT(password string) (passwordHash, ntHashHex string, err error) {
	if err := ValidatePassword(password); err != nil {
		return "", "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	nt := ComputeNTHash(password)
	return string(b), hex.EncodeToString(nt[:]), nil
}

// VerifyPassword compares password with a bcrypt hash. An empty hash never
// matches.
func VerifyPassword(password, hash string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckPassword reports whether password is the user's password. Users
// without a bcrypt hash are checked against the NT hash.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash != "" {
		return VerifyPassword(password, u.PasswordHash)
	}
	stored, ok := u.GetNTHash()
	if !ok {
		return false
	}
	candidate := ComputeNTHash(password)
	return subtle.ConstantTimeCompare(stored[:], candidate[:]) == 1
}

// ComputeNTHash is MD4 over the UTF-16LE password.
func ComputeNTHash(password string) [16]byte {
	return ntlm.NTHash(password)
}

// ParseNTHash decodes 32 hex digits.
func ParseNTHash(s string) ([16]byte, error) {
	var out [16]byte
	if hex.DecodedLen(len(s)) != len(out) {
		return out, ErrInvalidNTHash
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, ErrInvalidNTHash
	}
	return out, nil
}
