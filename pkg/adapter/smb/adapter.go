// Package smb is the SMB2 server adapter: it accepts TCP connections on the
// SMB port and runs the NEGOTIATE / SESSION_SETUP / LOGOFF / ECHO exchange
// on each of them.
package smb

import (
	"context"
	"fmt"
	"net"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/adapter"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// Dependencies are the collaborators of the adapter. All fields are optional.
type Dependencies struct {
	// Users resolves account names to NT hashes. Nil means no account is
	// known, so only guest logons can succeed.
	Users models.UserStore

	// Sessions is the session table. A fresh table with an ID counter
	// starting at 1 is created when nil.
	Sessions *session.Manager

	// Metrics is optional; nil disables collection.
	Metrics metrics.SMBMetrics
}

// Adapter implements adapter.Adapter for SMB2.
//
// Adapter embeds BaseAdapter for listener management, connection tracking
// and graceful shutdown. The SMB-specific parts (handler, session table and
// authenticator) live on the outer struct, and NewConnection plugs SMB
// connections into the shared accept loop.
type Adapter struct {
	*adapter.BaseAdapter

	config Config

	// handler processes SMB2 commands.
	handler *handlers.Handler

	sessionManager *session.Manager
	metrics        metrics.SMBMetrics
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a stopped Adapter. Zero values in config are replaced with
// defaults; an invalid configuration is an error.
func New(config Config, deps Dependencies) (*Adapter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SMB config: %w", err)
	}
	minD, maxD, _ := config.dialects()

	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewManager(session.NewCounter(1))
	}

	authenticator := auth.New(deps.Users, auth.Config{
		AllowGuest: config.AllowGuest,
		NTLM:       config.NTLM.ServerConfig(),
	}, deps.Metrics)

	handler := handlers.NewHandler(sessions, authenticator)
	handler.Metrics = deps.Metrics
	handler.SigningConfig = handlers.SigningConfig{
		Enabled:  *config.Signing.Enabled,
		Required: config.Signing.Required,
	}
	handler.MinDialect = minD
	handler.MaxDialect = maxD
	// Never advertise more than a single frame may carry.
	if limit := config.MaxMessageSize.Uint32(); limit < handler.MaxTransactSize {
		handler.MaxTransactSize = limit
		handler.MaxReadSize = limit
		handler.MaxWriteSize = limit
	}

	logger.Debug("SMB adapter configuration",
		"min_dialect", config.MinDialect,
		"max_dialect", config.MaxDialect,
		"signing_enabled", handler.SigningConfig.Enabled,
		"signing_required", handler.SigningConfig.Required,
		"allow_guest", config.AllowGuest,
		"max_message_size", config.MaxMessageSize.String())

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:        config.BindAddress,
		Port:               config.Port,
		MaxConnections:     config.MaxConnections,
		ShutdownTimeout:    config.Timeouts.Shutdown,
		MetricsLogInterval: config.MetricsLogInterval,
	}, "SMB")
	if deps.Metrics != nil {
		base.Metrics = deps.Metrics
	}

	return &Adapter{
		BaseAdapter:    base,
		config:         config,
		handler:        handler,
		sessionManager: sessions,
		metrics:        deps.Metrics,
	}, nil
}

// Serve starts the SMB server and blocks until ctx is cancelled or Stop is
// called. When SessionIdleTimeout is set, idle sessions are swept in the
// background for the lifetime of the server.
func (s *Adapter) Serve(ctx context.Context) error {
	if s.config.SessionIdleTimeout > 0 {
		sweepCtx, cancel := context.WithCancel(s.ShutdownCtx)
		defer cancel()
		go s.sessionManager.RunSweeper(sweepCtx, s.config.SessionIdleTimeout/2, s.config.SessionIdleTimeout, func(n int) {
			logger.Info("Expired idle SMB sessions", "count", n)
			metrics.SetActiveSessions(s.metrics, s.sessionManager.Count())
		})
	}
	return s.ServeWithFactory(ctx, s, s.onConnectionClose)
}

// NewConnection implements adapter.ConnectionFactory.
func (s *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return NewConnection(s, conn)
}

// onConnectionClose drops sessions still bound to the closed connection.
// Connections track their own sessions; this catches sessions created by a
// request whose response never reached the tracker.
func (s *Adapter) onConnectionClose(addr string) {
	if n := s.sessionManager.DeleteClient(addr); n > 0 {
		logger.Debug("Removed sessions of closed connection", logger.ClientAddr(addr), "count", n)
		metrics.SetActiveSessions(s.metrics, s.sessionManager.Count())
	}
}

// Sessions returns the session table.
func (s *Adapter) Sessions() *session.Manager {
	return s.sessionManager
}

// Handler returns the SMB2 command handler.
func (s *Adapter) Handler() *handlers.Handler {
	return s.handler
}
