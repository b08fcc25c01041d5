package apiclient

import "time"

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an access token and the account it was issued for.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

// Login exchanges SMB account credentials for an API token. A server without
// a JWT secret has no login route and answers 404.
func (c *Client) Login(username, password string) (*TokenResponse, error) {
	var tok TokenResponse
	err := c.post("/api/v1/auth/login", LoginRequest{Username: username, Password: password}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Me returns the account the client's token was issued for.
func (c *Client) Me() (*User, error) {
	var u User
	if err := c.get("/api/v1/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}
