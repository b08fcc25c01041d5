package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

const testJWTSecret = "test-secret-key-for-testing-only-32chars"

// testSetup creates an in-memory credential store and an APIConfig.
func testSetup(t *testing.T, port int, secret string) (store.Store, APIConfig) {
	t.Helper()
	t.Setenv(EnvAPISecret, "")

	cpStore, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("Failed to create credential store: %v", err)
	}
	t.Cleanup(func() { _ = cpStore.Close() })

	enabled := true
	cfg := APIConfig{
		Enabled:      &enabled,
		Port:         port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  10 * time.Second,
		JWT: JWTConfig{
			Secret:              secret,
			AccessTokenDuration: 15 * time.Minute,
		},
	}

	return cpStore, cfg
}

func addUser(t *testing.T, s store.Store, name, password string) {
	t.Helper()
	hash, ntHash, err := models.HashPasswordWithNT(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	_, err = s.CreateUser(context.Background(), &models.User{
		Username:     name,
		PasswordHash: hash,
		NTHash:       ntHash,
		Enabled:      true,
		Source:       string(models.SourceCLI),
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
}

func TestAPIServer_Lifecycle(t *testing.T) {
	cpStore, cfg := testSetup(t, 18480, testJWTSecret)

	server, err := NewServer(cfg, Dependencies{Store: cpStore, Version: "test"})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", cfg.Port))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}
	if server.Port() != cfg.Port {
		t.Errorf("Expected port %d, got %d", cfg.Port, server.Port())
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Expected nil on graceful shutdown, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shutdown in time")
	}
}

func TestAPIServer_PortInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer func() { _ = occupied.Close() }()

	cpStore, cfg := testSetup(t, occupied.Addr().(*net.TCPAddr).Port, "")
	cfg.BindAddress = "127.0.0.1"

	server, err := NewServer(cfg, Dependencies{Store: cpStore})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	if err := server.Start(context.Background()); err == nil {
		t.Fatal("Expected an error when the port is taken")
	}
}

func TestAPIServer_DefaultConfig(t *testing.T) {
	cpStore, _ := testSetup(t, 0, "")

	server, err := NewServer(APIConfig{}, Dependencies{Store: cpStore})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	if server.Port() != 8080 {
		t.Errorf("Expected default port 8080, got %d", server.Port())
	}
	if server.jwtService != nil {
		t.Error("Expected no JWT service without a secret")
	}
}

func TestAPIServer_RequiresStore(t *testing.T) {
	if _, err := NewServer(APIConfig{}, Dependencies{}); err == nil {
		t.Fatal("Expected error without a credential store")
	}
}

func TestAPIServer_ShortSecret(t *testing.T) {
	cpStore, cfg := testSetup(t, 0, "too-short")

	if _, err := NewServer(cfg, Dependencies{Store: cpStore}); err == nil {
		t.Fatal("Expected error for a short JWT secret")
	}
}

func TestAPIServer_EnvSecretEnablesAuth(t *testing.T) {
	cpStore, cfg := testSetup(t, 0, "")
	t.Setenv(EnvAPISecret, testJWTSecret)

	server, err := NewServer(cfg, Dependencies{Store: cpStore})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if server.jwtService == nil {
		t.Fatal("Expected the environment secret to enable authentication")
	}
}

func TestRouter_AuthenticatedFlow(t *testing.T) {
	cpStore, cfg := testSetup(t, 0, testJWTSecret)
	addUser(t, cpStore, "alice", "alice-password")

	sessions := session.NewManager(session.NewCounter(1))
	sessions.Create("10.0.0.1:50000")

	server, err := NewServer(cfg, Dependencies{Store: cpStore, Sessions: sessions})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	// Without a token the session listing is refused.
	resp, err := http.Get(ts.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status %d, got %d", http.StatusUnauthorized, resp.StatusCode)
	}

	// Log in.
	resp, err = http.Post(ts.URL+"/api/v1/auth/login", "application/json",
		strings.NewReader(`{"username":"alice","password":"alice-password"}`))
	if err != nil {
		t.Fatalf("Failed to log in: %v", err)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	err = json.NewDecoder(resp.Body).Decode(&login)
	_ = resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK || login.AccessToken == "" {
		t.Fatalf("Login failed: status %d, err %v", resp.StatusCode, err)
	}

	// The token opens the session listing.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var infos []session.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("Failed to decode sessions: %v", err)
	}
	if len(infos) != 1 || infos[0].ClientAddr != "10.0.0.1:50000" {
		t.Errorf("Unexpected sessions: %+v", infos)
	}

	// The token identifies its user.
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	var me struct {
		Username string `json:"username"`
	}
	err = json.NewDecoder(meResp.Body).Decode(&me)
	_ = meResp.Body.Close()
	if err != nil || meResp.StatusCode != http.StatusOK || me.Username != "alice" {
		t.Errorf("Unexpected /auth/me answer: status %d, user %q, err %v", meResp.StatusCode, me.Username, err)
	}

	// The login was recorded.
	u, err := cpStore.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if u.LastLogin == nil {
		t.Error("Expected last login to be set")
	}
}

func TestRouter_Unauthenticated(t *testing.T) {
	cpStore, cfg := testSetup(t, 0, "")

	server, err := NewServer(cfg, Dependencies{Store: cpStore, Sessions: session.NewManager(session.NewCounter(1))})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions", http.StatusOK},
		{http.MethodGet, "/api/v1/users", http.StatusOK},
		{http.MethodPost, "/api/v1/auth/login", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(metrics.ResetRegistry)

	cpStore, cfg := testSetup(t, 0, "")
	server, err := NewServer(cfg, Dependencies{Store: cpStore})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestRouter_NoMetricsWhenDisabled(t *testing.T) {
	metrics.ResetRegistry()

	cpStore, cfg := testSetup(t, 0, "")
	server, err := NewServer(cfg, Dependencies{Store: cpStore})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}
