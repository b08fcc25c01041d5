// Package credentials keeps the API tokens obtained by `dittosmb login`.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/dittosmb/internal/paths"
)

// FileName is the name of the credentials file in the config directory.
const FileName = "credentials.json"

// expirySkew treats tokens about to expire as already expired.
const expirySkew = time.Minute

var (
	ErrNoCurrentContext = errors.New("no current context set")
	ErrContextNotFound  = errors.New("context not found")
	ErrNotLoggedIn      = errors.New("not logged in - run 'dittosmb login' first")
)

// Context is one server the CLI has logged in to.
type Context struct {
	ServerURL   string    `json:"server_url"`
	Username    string    `json:"username,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token is missing an expiry or expires
// within expirySkew.
func (c *Context) IsExpired() bool {
	return c.ExpiresAt.IsZero() || time.Now().Add(expirySkew).After(c.ExpiresAt)
}

// Token returns the access token, or ErrNotLoggedIn when there is no
// usable one.
func (c *Context) Token() (string, error) {
	if c.AccessToken == "" || c.IsExpired() {
		return "", ErrNotLoggedIn
	}
	return c.AccessToken, nil
}

type file struct {
	CurrentContext string              `json:"current_context"`
	Contexts       map[string]*Context `json:"contexts"`
}

// Store is the on-disk set of contexts. It is not safe for concurrent use;
// each CLI invocation opens its own.
type Store struct {
	path string
	data file
}

// NewStore opens the credentials file in the dittosmb config directory.
func NewStore() (*Store, error) {
	return NewStoreAt(paths.ConfigFile(FileName))
}

// NewStoreAt opens the credentials file at path. A missing file is an
// empty store.
func NewStoreAt(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("corrupt credentials file %s: %w", path, err)
		}
	}
	if s.data.Contexts == nil {
		s.data.Contexts = make(map[string]*Context)
	}
	return s, nil
}

// save writes the file through a temporary sibling and a rename so a
// crash never leaves a truncated file behind.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// GetCurrentContext returns the context selected by the last login.
func (s *Store) GetCurrentContext() (*Context, error) {
	if s.data.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}
	ctx, ok := s.data.Contexts[s.data.CurrentContext]
	if !ok {
		return nil, ErrContextNotFound
	}
	return ctx, nil
}

func (s *Store) GetCurrentContextName() string {
	return s.data.CurrentContext
}

// SetContext creates or replaces a context and makes it current.
func (s *Store) SetContext(name string, ctx *Context) error {
	s.data.Contexts[name] = ctx
	s.data.CurrentContext = name
	return s.save()
}

// ClearCurrentContext drops the token of the current context but keeps
// its server URL, so the next login needs no --server.
func (s *Store) ClearCurrentContext() error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}
	ctx.AccessToken = ""
	ctx.ExpiresAt = time.Time{}
	return s.save()
}

func (s *Store) ConfigPath() string {
	return s.path
}

// GenerateContextName derives a context name from a server URL: its
// host:port, or the URL itself when it has no host.
func GenerateContextName(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	return u.Host
}
