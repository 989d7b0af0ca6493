package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/maximcoj/teleblog/core/database"
)

func TestMongoBackendContract(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	c, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	uri, err := c.ConnectionString(ctx)
	require.NoError(t, err)

	n := 0
	runBackendSuite(t, func(t *testing.T) Backend {
		n++
		b, err := NewMongoBackend(ctx, uri, fmt.Sprintf("teleblog_test_%d", n))
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = b.db.Drop(ctx)
			_ = b.Close(ctx)
		})
		return b
	})
}

func TestPostgresBackendContract(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("teleblog"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	url, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrationsURL(ctx, url))

	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runBackendSuite(t, func(t *testing.T) Backend {
		_, err := db.ExecContext(ctx, "TRUNCATE blogs, posts")
		require.NoError(t, err)
		return NewPostgresBackend(db)
	})
}
