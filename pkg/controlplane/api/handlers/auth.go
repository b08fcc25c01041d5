package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/controlplane/api/auth"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// AuthHandler serves login and the token's own account.
type AuthHandler struct {
	store      models.UserStore
	jwtService *auth.JWTService
}

func NewAuthHandler(s models.UserStore, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{store: s, jwtService: jwtService}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the token plus the account it was issued to.
type LoginResponse struct {
	auth.Token
	User UserResponse `json:"user"`
}

// UserResponse is an account without any credential material.
type UserResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Domain      string     `json:"domain,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Source      string     `json:"source"`
	Enabled     bool       `json:"enabled"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

func userToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Domain:      u.Domain,
		DisplayName: u.DisplayName,
		Source:      u.Source,
		Enabled:     u.Enabled,
		LastLogin:   u.LastLogin,
	}
}

// An unknown account and a wrong password answer the same way.
const badCredentials = "Invalid username or password"

// Login exchanges a username and password for an access token. Disabled
// accounts get 403 only after the password checked out.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		BadRequest(w, r, "Username and password are required")
		return
	}

	ctx := r.Context()
	user, err := h.store.GetUser(ctx, req.Username)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		Unauthorized(w, r, badCredentials)
		return
	case err != nil:
		logger.ErrorCtx(ctx, "Credential lookup failed", logger.Username(req.Username), logger.Err(err))
		InternalServerError(w, r, "Authentication failed")
		return
	case !user.CheckPassword(req.Password):
		Unauthorized(w, r, badCredentials)
		return
	case !user.Enabled:
		Forbidden(w, r, "User account is disabled")
		return
	}

	token, err := h.jwtService.GenerateAccessToken(user)
	if err != nil {
		logger.ErrorCtx(ctx, "Token signing failed", logger.Username(user.Username), logger.Err(err))
		InternalServerError(w, r, "Failed to generate token")
		return
	}
	if err := h.store.UpdateLastLogin(ctx, user.Username, time.Now()); err != nil {
		logger.WarnCtx(ctx, "Last login not recorded", logger.Username(user.Username), logger.Err(err))
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: *token, User: userToResponse(user)})
}

// Me handles GET /api/v1/auth/me: the account behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, r, "No token presented")
		return
	}

	user, err := h.store.GetUser(r.Context(), claims.Username)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		// The account was deleted after the token was issued.
		Unauthorized(w, r, "Token user no longer exists")
	case err != nil:
		logger.ErrorCtx(r.Context(), "Credential lookup failed", logger.Username(claims.Username), logger.Err(err))
		InternalServerError(w, r, "Failed to load user")
	default:
		writeJSON(w, http.StatusOK, userToResponse(user))
	}
}

// UserHandler exposes the credential store read-only.
type UserHandler struct {
	store models.UserStore
}

func NewUserHandler(s models.UserStore) *UserHandler {
	return &UserHandler{store: s}
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		logger.ErrorCtx(r.Context(), "Failed to list users", logger.Err(err))
		InternalServerError(w, r, "Failed to list users")
		return
	}

	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = userToResponse(u)
	}
	writeJSON(w, http.StatusOK, out)
}
