package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidTokenType    = errors.New("invalid token type")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

const (
	// DefaultIssuer is the iss claim of issued tokens.
	DefaultIssuer = "dittosmb"
	// DefaultAccessTokenDuration applies when JWTConfig leaves it zero.
	DefaultAccessTokenDuration = 15 * time.Minute
	// MinSecretLength is the shortest accepted HMAC key.
	MinSecretLength = 32
)

// JWTConfig parameterizes a JWTService. Zero Issuer and AccessTokenDuration
// take the package defaults.
type JWTConfig struct {
	Secret              string
	Issuer              string
	AccessTokenDuration time.Duration
}

// Token is what the login endpoint hands back.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	key    []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	s := &JWTService{
		key:    []byte(config.Secret),
		issuer: config.Issuer,
		ttl:    config.AccessTokenDuration,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.ttl == 0 {
		s.ttl = DefaultAccessTokenDuration
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	return s, nil
}

// AccessTokenTTL is the lifetime given to every issued token.
func (s *JWTService) AccessTokenTTL() time.Duration { return s.ttl }

// GenerateAccessToken issues a token whose subject is user's name.
func (s *JWTService) GenerateAccessToken(user *models.User) (*Token, error) {
	now := time.Now()
	exp := now.Add(s.ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:    user.ID,
		Username:  user.Username,
		Source:    user.Source,
		TokenType: TokenTypeAccess,
	}).SignedString(s.key)
	if err != nil {
		return nil, ErrTokenSigningFailed
	}

	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl / time.Second),
		ExpiresAt:   exp,
	}, nil
}

// ValidateAccessToken verifies signature, issuer and expiry and requires
// the access token type. Expiry is reported as ErrExpiredToken; every other
// verification failure as ErrInvalidToken.
func (s *JWTService) ValidateAccessToken(raw string) (*Claims, error) {
	var claims Claims
	_, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return s.key, nil })
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case !claims.IsAccessToken():
		return nil, ErrInvalidTokenType
	}
	return &claims, nil
}
