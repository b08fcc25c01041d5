// Package controlplane wires the dittosmb server together.
//
// The control plane owns:
//   - the credential store (SQLite/PostgreSQL), kept in sync with the
//     users of the configuration file
//   - the SMB session table, shared by the SMB adapter and the API
//   - the SMB adapter
//   - the management API server (optional)
//
// Usage:
//
//	cp, err := controlplane.New(ctx, &controlplane.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer cp.Close()
//	return cp.Serve(ctx)
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/adapter/smb"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/controlplane/api"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// Options configures the ControlPlane.
type Options struct {
	// Config is the loaded and validated server configuration.
	Config *config.Config

	// Version is reported by the API liveness probe.
	Version string

	// Metrics is optional; nil disables SMB metrics.
	Metrics metrics.SMBMetrics
}

// ControlPlane is the running server.
type ControlPlane struct {
	store     *store.GORMStore
	sessions  *session.Manager
	smb       *smb.Adapter
	apiServer *api.Server
	cfg       *config.Config

	// reloadMu serializes ApplyConfig calls from the config watcher.
	reloadMu sync.Mutex
}

// New opens the credential store, imports the configured users and
// creates the SMB adapter and API server. Nothing listens until Serve.
func New(ctx context.Context, opts *Options) (*ControlPlane, error) {
	if opts == nil || opts.Config == nil {
		return nil, errors.New("configuration is required")
	}
	cfg := opts.Config

	cpStore, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	cp := &ControlPlane{
		store:    cpStore,
		sessions: session.NewManager(session.NewCounter(1)),
		cfg:      cfg,
	}

	if err := cp.syncUsers(ctx, cfg); err != nil {
		_ = cpStore.Close()
		return nil, err
	}

	cp.smb, err = smb.New(cfg.SMB, smb.Dependencies{
		Users:    cpStore,
		Sessions: cp.sessions,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		_ = cpStore.Close()
		return nil, err
	}

	if cfg.API.IsEnabled() {
		cp.apiServer, err = api.NewServer(cfg.API, api.Dependencies{
			Store:    cpStore,
			Sessions: cp.sessions,
			Version:  opts.Version,
		})
		if err != nil {
			_ = cpStore.Close()
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
		logger.Info("Control plane API server initialized", "port", cfg.API.Port)
	}

	return cp, nil
}

// Serve runs the SMB adapter and the API server until ctx is cancelled or
// one of them fails, then shuts both down. A shutdown triggered by ctx
// returns nil.
func (cp *ControlPlane) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("Starting dittosmb")

	errChan := make(chan error, 2)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error(name+" failed, initiating shutdown", logger.Err(err))
				errChan <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	run("SMB server", cp.smb.Serve)
	if cp.apiServer != nil {
		run("API server", cp.apiServer.Start)
	}

	<-ctx.Done()
	wg.Wait()
	close(errChan)

	logger.Info("dittosmb stopped", "sessions", cp.sessions.Count())

	// The first error is the cause; later ones are fallout of the shutdown.
	return <-errChan
}

// ApplyConfig applies the reloadable part of a changed configuration: the
// log level and the config-sourced users. Listener, protocol and database
// settings need a restart.
func (cp *ControlPlane) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	cp.reloadMu.Lock()
	defer cp.reloadMu.Unlock()

	if cfg.Logging.Level != cp.cfg.Logging.Level {
		logger.SetLevel(cfg.Logging.Level)
		logger.Info("Log level changed", "level", cfg.Logging.Level)
	}

	if err := cp.syncUsers(ctx, cfg); err != nil {
		return err
	}
	cp.cfg = cfg
	return nil
}

// syncUsers makes the config-sourced accounts of the store match cfg.
func (cp *ControlPlane) syncUsers(ctx context.Context, cfg *config.Config) error {
	users, err := cfg.UserModels()
	if err != nil {
		return fmt.Errorf("invalid users section: %w", err)
	}

	res, err := cp.store.SyncConfigUsers(ctx, users)
	if err != nil {
		return fmt.Errorf("failed to import configured users: %w", err)
	}

	for _, name := range res.Skipped {
		logger.Warn("Configured user shadowed by a CLI-managed account of the same name", logger.Username(name))
	}
	if res.Created+res.Updated+res.Removed > 0 {
		logger.Info("Configured users synchronized",
			"created", res.Created,
			"updated", res.Updated,
			"removed", res.Removed)
	}
	return nil
}

// Store returns the credential store.
func (cp *ControlPlane) Store() store.Store {
	return cp.store
}

// Sessions returns the SMB session table.
func (cp *ControlPlane) Sessions() *session.Manager {
	return cp.sessions
}

// SMB returns the SMB adapter.
func (cp *ControlPlane) SMB() *smb.Adapter {
	return cp.smb
}

// APIServer returns the API server (nil if not enabled).
func (cp *ControlPlane) APIServer() *api.Server {
	return cp.apiServer
}

// Close releases the credential store.
func (cp *ControlPlane) Close() error {
	return cp.store.Close()
}
