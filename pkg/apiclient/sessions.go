package apiclient

import (
	"fmt"
	"net/url"
	"time"
)

// Session is one SMB session as listed by the API.
type Session struct {
	ID           uint64    `json:"id"`
	State        string    `json:"state"`
	Username     string    `json:"username,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	Workstation  string    `json:"workstation,omitempty"`
	Guest        bool      `json:"guest"`
	Anonymous    bool      `json:"anonymous"`
	ClientAddr   string    `json:"client_addr"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionFilter narrows ListSessions. Zero fields match everything.
type SessionFilter struct {
	User  string
	State string
}

// ListSessions returns the server's SMB sessions.
func (c *Client) ListSessions(filter SessionFilter) ([]Session, error) {
	q := url.Values{}
	if filter.User != "" {
		q.Set("user", filter.User)
	}
	if filter.State != "" {
		q.Set("state", filter.State)
	}

	path := "/api/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var sessions []Session
	if err := c.get(path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns one session by ID.
func (c *Client) GetSession(id uint64) (*Session, error) {
	var s Session
	if err := c.get(fmt.Sprintf("/api/v1/sessions/%d", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
