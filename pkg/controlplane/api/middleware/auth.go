// Package middleware provides HTTP middleware for the management API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/controlplane/api/auth"
	"github.com/marmos91/dittosmb/pkg/controlplane/api/handlers"
)

const bearerRealm = `Bearer realm="dittosmb"`

// bearerToken returns the credentials of an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || token == "" || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return token, true
}

// JWTAuth rejects requests without a valid access token with 401 and a
// WWW-Authenticate challenge. Accepted claims are available to handlers
// through auth.ClaimsFromContext.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", bearerRealm)
				handlers.Unauthorized(w, r, "Authorization header required")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				logger.DebugCtx(r.Context(), "Rejected API token", "path", r.URL.Path, logger.Err(err))
				w.Header().Set("WWW-Authenticate", bearerRealm+`, error="invalid_token"`)
				handlers.Unauthorized(w, r, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
