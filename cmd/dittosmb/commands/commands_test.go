package commands

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/cli/credentials"
	"github.com/marmos91/dittosmb/pkg/apiclient"
)

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8080", want: "http://localhost:8080"},
		{in: "https://smb.example.com/", want: "https://smb.example.com"},
		{in: "localhost:8080", want: "http://localhost:8080"},
		{in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{in: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeServerURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveServerURL(t *testing.T) {
	store, err := credentials.NewStoreAt(t.TempDir() + "/credentials.json")
	require.NoError(t, err)

	_, err = resolveServerURL(store, "")
	assert.Error(t, err, "no flag and no context")

	got, err := resolveServerURL(store, "localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", got)

	require.NoError(t, store.SetContext("saved", &credentials.Context{ServerURL: "http://saved:8080"}))
	got, err = resolveServerURL(store, "")
	require.NoError(t, err)
	assert.Equal(t, "http://saved:8080", got)
}

func TestSessionList_Rows(t *testing.T) {
	now := time.Now()
	sessions := SessionList{
		{ID: 0x400000005, State: "valid", Username: "alice", Domain: "WORKGROUP", ClientAddr: "10.0.0.1:50000", CreatedAt: now, LastActivity: now},
		{ID: 7, State: "valid", Anonymous: true, ClientAddr: "10.0.0.2:50001", CreatedAt: now, LastActivity: now},
		{ID: 9, State: "in-progress", ClientAddr: "10.0.0.3:50002"},
	}

	rows := sessions.Rows()
	require.Len(t, rows, 3)
	assert.Len(t, sessions.Headers(), len(rows[0]))

	assert.Equal(t, "0x0000000400000005", rows[0][0])
	assert.Equal(t, "alice", rows[0][2])
	assert.Equal(t, "(anonymous)", rows[1][2])
	assert.Equal(t, "-", rows[2][2])
	assert.Equal(t, "-", rows[2][6], "zero creation time")
}

func TestQueryStatus(t *testing.T) {
	t.Run("healthy and ready", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/health":
				_, _ = w.Write([]byte(`{"status":"healthy","data":{"service":"dittosmb","version":"1.2.3","uptime":"1h0m0s","sessions":2}}`))
			case "/health/ready":
				_, _ = w.Write([]byte(`{"status":"healthy","data":{}}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		status := queryStatus(apiclient.New(srv.URL))
		assert.True(t, status.Healthy)
		assert.True(t, status.Ready)
		assert.Equal(t, "1.2.3", status.Version)
		require.NotNil(t, status.Sessions)
		assert.Equal(t, 2, *status.Sessions)
		assert.Empty(t, status.Error)
	})

	t.Run("live but not ready", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Path == "/health/ready" {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unavailable"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"healthy","data":{"service":"dittosmb"}}`))
		}))
		defer srv.Close()

		status := queryStatus(apiclient.New(srv.URL))
		assert.True(t, status.Healthy)
		assert.False(t, status.Ready)
		assert.Contains(t, status.Error, "database unavailable")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		status := queryStatus(apiclient.New(url))
		assert.Equal(t, "unreachable", status.Status)
		assert.False(t, status.Healthy)
		assert.NotEmpty(t, status.Error)
	})
}

func TestRootCommandTree(t *testing.T) {
	root := rootCmd
	for _, name := range []string{"start", "version", "config", "user", "login", "logout", "status", "sessions", "users"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
