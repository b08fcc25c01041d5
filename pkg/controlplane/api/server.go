package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/controlplane/api/auth"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

// drainTimeout bounds the graceful stop that follows cancellation of Start.
const drainTimeout = 5 * time.Second

// Dependencies are what the API reads from.
type Dependencies struct {
	Store store.Store // required

	// Sessions backs /api/v1/sessions; nil leaves the routes out.
	Sessions *session.Manager

	// Version is reported by the liveness probe.
	Version string
}

// Server is the management HTTP server.
type Server struct {
	http       *http.Server
	port       int
	jwtService *auth.JWTService

	stopOnce sync.Once
	stopErr  error

	mu    sync.Mutex
	bound net.Addr
}

// NewServer builds a stopped server. Without a JWT secret, from the config
// or DITTOSMB_API_JWT_SECRET, /api/v1 is served unauthenticated.
func NewServer(config APIConfig, deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("api: credential store is required")
	}
	config.ApplyDefaults()

	s := &Server{port: config.Port}
	if !config.HasJWTSecret() {
		logger.Warn("No API JWT secret configured, /api/v1 is unauthenticated", "env_var", EnvAPISecret)
	} else {
		svc, err := auth.NewJWTService(auth.JWTConfig{
			Secret:              config.GetJWTSecret(),
			AccessTokenDuration: config.JWT.AccessTokenDuration,
		})
		if err != nil {
			return nil, fmt.Errorf("api: %w (set api.jwt.secret or %s)", err, EnvAPISecret)
		}
		s.jwtService = svc
	}

	s.http = &http.Server{
		Addr:         net.JoinHostPort(config.BindAddress, strconv.Itoa(config.Port)),
		Handler:      NewRouter(deps, s.jwtService),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// returns nil. Listen and serve failures are returned as errors.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("API server listen on %s: %w", s.http.Addr, err)
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()

	logger.Info("API server listening", "address", ln.Addr().String(), "auth", s.jwtService != nil)

	served := make(chan error, 1)
	go func() { served <- s.http.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		defer cancel()
		return s.Stop(drainCtx)
	}
}

// Stop shuts the server down gracefully. Only the first call does work;
// later calls return its result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.http.Shutdown(ctx); err != nil {
			logger.Error("API server shutdown", logger.Err(err))
			s.stopErr = fmt.Errorf("API server shutdown: %w", err)
			return
		}
		logger.Info("API server stopped")
	})
	return s.stopErr
}

// Port is the bound port once Start has listened, the configured one before.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.bound.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.port
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
