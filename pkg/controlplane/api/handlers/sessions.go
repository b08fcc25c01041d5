package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// SessionLister is the read side of the SMB session table.
type SessionLister interface {
	List() []*session.Session
}

// SessionHandler exposes the SMB session table.
type SessionHandler struct {
	sessions SessionLister
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionLister) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List handles GET /api/v1/sessions.
//
// The optional "user" query parameter restricts the result to sessions of
// one account; "state" restricts it to one lifecycle state.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := models.NormalizeUsername(r.URL.Query().Get("user"))
	state := r.URL.Query().Get("state")

	out := make([]session.Info, 0)
	for _, s := range h.sessions.List() {
		info := s.Info()
		if user != "" && models.NormalizeUsername(info.Username) != user {
			continue
		}
		if state != "" && info.State != state {
			continue
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/sessions/{id}. The id is decimal or 0x-prefixed
// hex, the form session IDs take in logs.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 0, 64)
	if err != nil || id == 0 {
		BadRequest(w, r, "Invalid session id")
		return
	}

	for _, s := range h.sessions.List() {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s.Info())
			return
		}
	}
	NotFound(w, r, "Session not found")
}
