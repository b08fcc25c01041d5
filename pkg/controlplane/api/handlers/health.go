package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HealthCheckTimeout bounds the credential store check of the readiness
// probe.
const HealthCheckTimeout = 5 * time.Second

// Healthchecker is implemented by the credential store.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated:
//   - Liveness: is the process serving HTTP?
//   - Readiness: can logons be verified against the credential store?
type HealthHandler struct {
	store     Healthchecker
	sessions  SessionLister
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler. store and sessions may be
// nil; readiness then reports unhealthy.
func NewHealthHandler(store Healthchecker, sessions SessionLister, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		sessions:  sessions,
		version:   version,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	data := map[string]any{
		"service":    "dittosmb",
		"version":    h.version,
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}
	if h.sessions != nil {
		data["sessions"] = len(h.sessions.List())
	}
	writeProbe(w, data, nil)
}

// Readiness handles GET /health/ready. It answers 503 when the credential
// store cannot be reached.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeProbe(w, nil, errors.New("credential store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := h.store.Healthcheck(ctx); err != nil {
		writeProbe(w, nil, fmt.Errorf("credential store: %w", err))
		return
	}
	writeProbe(w, map[string]any{
		"store_latency": time.Since(start).String(),
	}, nil)
}
