package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/auth/spnego"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// Default buffer limits advertised in NEGOTIATE.
const (
	DefaultMaxTransactSize = 1 << 20
	DefaultMaxReadSize     = 1 << 20
	DefaultMaxWriteSize    = 1 << 20
)

// SigningConfig controls the security mode advertised in NEGOTIATE and
// SESSION_SETUP. The server never signs; the bits only tell clients what
// to expect.
type SigningConfig struct {
	Enabled  bool
	Required bool
}

// Handler manages SMB2 protocol handling
type Handler struct {
	StartTime time.Time

	// Server identity
	ServerGUID [16]byte

	// SessionManager is the session table shared by every connection.
	SessionManager *session.Manager

	// Authenticator verifies SESSION_SETUP security buffers.
	Authenticator *auth.Authenticator

	// Metrics is optional; nil disables collection.
	Metrics metrics.SMBMetrics

	// Configuration
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32

	SigningConfig SigningConfig

	// MinDialect and MaxDialect bound dialect selection. Zero means no bound.
	MinDialect types.Dialect
	MaxDialect types.Dialect

	// securityBlob is the NegTokenInit2 sent in every NEGOTIATE response.
	securityBlob []byte
}

// NewHandler creates an SMB2 handler over a session table and an
// authenticator. The server GUID is random per process.
func NewHandler(sessions *session.Manager, authenticator *auth.Authenticator) *Handler {
	if sessions == nil {
		sessions = session.NewManager(nil)
	}
	if authenticator == nil {
		authenticator = auth.New(nil, auth.Config{}, nil)
	}

	return &Handler{
		StartTime:       time.Now(),
		ServerGUID:      uuid.New(),
		SessionManager:  sessions,
		Authenticator:   authenticator,
		MaxTransactSize: DefaultMaxTransactSize,
		MaxReadSize:     DefaultMaxReadSize,
		MaxWriteSize:    DefaultMaxWriteSize,
		SigningConfig:   SigningConfig{Enabled: true},
		securityBlob:    spnego.NewNegTokenInit2(nil).Bytes(),
	}
}

// SecurityBuffer returns the SPNEGO NegTokenInit2 advertised in NEGOTIATE
// responses, including the SMB1 upgrade response.
func (h *Handler) SecurityBuffer() []byte {
	return h.securityBlob
}

// SecurityMode returns the NEGOTIATE/SESSION_SETUP security mode bits.
func (h *Handler) SecurityMode() uint16 {
	var mode uint16
	if h.SigningConfig.Enabled || h.SigningConfig.Required {
		mode |= types.NegotiateSigningEnabled
	}
	if h.SigningConfig.Required {
		mode |= types.NegotiateSigningRequired
	}
	return mode
}

// GetSession retrieves a session by ID.
func (h *Handler) GetSession(sessionID uint64) (*session.Session, bool) {
	return h.SessionManager.Get(sessionID)
}

// CleanupSession removes a session on LOGOFF or connection close.
// The caller must not hold the session lock.
func (h *Handler) CleanupSession(ctx context.Context, sessionID uint64) {
	if h.SessionManager.Delete(sessionID) {
		logger.DebugCtx(ctx, "Session removed", logger.SessionID(sessionID))
	}
	metrics.SetActiveSessions(h.Metrics, h.SessionManager.Count())
}
