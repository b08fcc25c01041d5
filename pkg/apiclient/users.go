package apiclient

import "time"

// User is an account of the server's credential store.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Domain      string     `json:"domain,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Source      string     `json:"source"`
	Enabled     bool       `json:"enabled"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

// ListUsers returns the accounts of the credential store.
func (c *Client) ListUsers() ([]User, error) {
	var users []User
	if err := c.get("/api/v1/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}
