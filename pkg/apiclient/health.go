package apiclient

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Service   string `json:"service"`
		Version   string `json:"version"`
		StartedAt string `json:"started_at"`
		Uptime    string `json:"uptime"`
		UptimeSec int64  `json:"uptime_sec"`
		Sessions  *int   `json:"sessions,omitempty"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// Health queries the liveness probe. It needs no token.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready queries the readiness probe and returns nil when the server can
// verify logons.
func (c *Client) Ready() error {
	return c.get("/health/ready", nil)
}
