package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Response is the body of the /health probes. Error is only set when Status
// is "unhealthy".
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeProbe answers a health probe: 200 with data, or 503 carrying err.
func writeProbe(w http.ResponseWriter, data any, err error) {
	resp := Response{Status: statusHealthy, Timestamp: time.Now().UTC(), Data: data}
	if err != nil {
		resp.Status = statusUnhealthy
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON encodes data before touching w, so a value that fails to encode
// still yields a clean 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode API response", logger.Err(err))
		WriteProblem(w, nil, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
