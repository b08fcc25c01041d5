//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// createPostgresStore starts a throwaway PostgreSQL container and opens a
// store on it. Requires a Docker daemon.
func createPostgresStore(t *testing.T) *GORMStore {
	t.Helper()
	ctx := context.Background()

	// PostgreSQL logs "ready" once during bootstrap and once when it is.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dittosmb_test"),
		postgres.WithUsername("dittosmb_test"),
		postgres.WithPassword("dittosmb_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "dittosmb_test",
			User:     "dittosmb_test",
			Password: "dittosmb_test",
		},
	}
	cfg.ApplyDefaults()

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := createPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.Healthcheck(ctx))

	_, err := s.CreateUser(ctx, &models.User{Username: "Alice", NTHash: hashA, Enabled: true})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, &models.User{Username: "ALICE", NTHash: hashB, Enabled: true})
	assert.ErrorIs(t, err, models.ErrDuplicateUser)

	u, err := s.GetUser(ctx, "aLiCe")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, string(models.SourceCLI), u.Source)

	require.NoError(t, s.SetEnabled(ctx, "alice", false))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.Enabled)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateLastLogin(ctx, "alice", now))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u.LastLogin)
	assert.True(t, u.LastLogin.Equal(now))

	res, err := s.SyncConfigUsers(ctx, []*models.User{
		{Username: "svc-backup", NTHash: hashB, Enabled: true},
		{Username: "alice", NTHash: hashB, Enabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"alice"}, res.Skipped)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "svc-backup", users[1].Username)
}
