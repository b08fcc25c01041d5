package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{"expired in past", time.Now().Add(-1 * time.Hour), true},
		{"expires soon (within 60s)", time.Now().Add(30 * time.Second), true},
		{"not expired", time.Now().Add(2 * time.Hour), false},
		{"zero time is expired", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expected, ctx.IsExpired())
		})
	}
}

func TestContextToken(t *testing.T) {
	ctx := &Context{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	token, err := ctx.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	ctx.ExpiresAt = time.Now().Add(-time.Minute)
	_, err = ctx.Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = (&Context{}).Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestStoreOperations(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	store, err := NewStore()
	require.NoError(t, err)

	expectedPath := filepath.Join(tmpDir, "dittosmb", FileName)
	assert.Equal(t, expectedPath, store.ConfigPath())

	_, err = store.GetCurrentContext()
	assert.ErrorIs(t, err, ErrNoCurrentContext)
	assert.ErrorIs(t, store.ClearCurrentContext(), ErrNoCurrentContext)

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.SetContext("localhost:8080", &Context{ServerURL: "http://localhost:8080"}))
	require.NoError(t, store.SetContext("nas:8080", &Context{
		ServerURL:   "http://nas:8080",
		Username:    "alice",
		AccessToken: "tok-1",
		ExpiresAt:   expires,
	}))
	assert.Equal(t, "nas:8080", store.GetCurrentContextName())

	info, err := os.Stat(expectedPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(expectedPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	reloaded, err := NewStore()
	require.NoError(t, err)
	current, err := reloaded.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "alice", current.Username)
	assert.Equal(t, "tok-1", current.AccessToken)
	assert.True(t, expires.Equal(current.ExpiresAt))

	require.NoError(t, reloaded.ClearCurrentContext())

	again, err := NewStore()
	require.NoError(t, err)
	current, err = again.GetCurrentContext()
	require.NoError(t, err)
	assert.Empty(t, current.AccessToken)
	assert.Equal(t, "http://nas:8080", current.ServerURL)
}

func TestNewStoreAt_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStoreAt(path)
	assert.Error(t, err)
}

func TestGenerateContextName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://localhost:8080", "localhost:8080"},
		{"https://nas.example.com", "nas.example.com"},
		{"localhost:8080", "localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateContextName(tt.url))
		})
	}
}
