package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func newTestService(t *testing.T, config JWTConfig) *JWTService {
	t.Helper()
	if config.Secret == "" {
		config.Secret = testSecret
	}
	svc, err := NewJWTService(config)
	require.NoError(t, err)
	return svc
}

func testUser() *models.User {
	return &models.User{ID: "test-uuid", Username: "testuser", Source: string(models.SourceCLI)}
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewJWTService(t *testing.T) {
	svc := newTestService(t, JWTConfig{})
	assert.Equal(t, DefaultIssuer, svc.issuer)
	assert.Equal(t, DefaultAccessTokenDuration, svc.AccessTokenTTL())

	for _, secret := range []string{"", "short", testSecret[:MinSecretLength-1]} {
		_, err := NewJWTService(JWTConfig{Secret: secret})
		assert.ErrorIs(t, err, ErrInvalidSecretLength, "secret %q", secret)
	}
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestService(t, JWTConfig{Issuer: "test-issuer", AccessTokenDuration: 10 * time.Minute})

	tok, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.EqualValues(t, 600, tok.ExpiresIn)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), tok.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "testuser", claims.Subject)
	assert.Equal(t, "test-uuid", claims.UserID)
	assert.Equal(t, "cli", claims.Source)
	assert.True(t, claims.IsAccessToken())
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	svc := newTestService(t, JWTConfig{})
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	mint := func(cfg JWTConfig) string {
		tok, err := newTestService(t, cfg).GenerateAccessToken(testUser())
		require.NoError(t, err)
		return tok.AccessToken
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "invalid-token", ErrInvalidToken},
		{"other secret", mint(JWTConfig{Secret: "another-secret-key-that-is-32-chars"}), ErrInvalidToken},
		{"other issuer", mint(JWTConfig{Issuer: "someone-else"}), ErrInvalidToken},
		{"expired", mint(JWTConfig{AccessTokenDuration: -time.Minute}), ErrExpiredToken},
		{"refresh type", sign(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: future},
			TokenType:        TokenType("refresh"),
		}), ErrInvalidTokenType},
		{"alg none", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: future},
			TokenType:        TokenTypeAccess,
		}), ErrInvalidToken},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer},
			TokenType:        TokenTypeAccess,
		}), ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
