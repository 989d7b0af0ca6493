package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/maximcoj/teleblog/core/config"
)

func TestOpenFallsBackToFileWhenMongoIsDown(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &coreconfig.Config{
		Storage: coreconfig.StorageConfig{
			Driver:                coreconfig.StorageMongo,
			DataDir:               dir,
			ConnectTimeoutSeconds: 1,
		},
		Mongo: coreconfig.MongoConfig{URI: "mongodb://127.0.0.1:1", Database: "teleblog"},
	}

	start := time.Now()
	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(ctx) })

	assert.Less(t, time.Since(start), 10*time.Second, "probe must respect the connect timeout")
	assert.Equal(t, "file", b.Name())

	require.NoError(t, b.Create(ctx, Blogs, "b1", doc(t, record{ID: "b1", UserID: 1, Subdomain: "one"})))
	got, err := b.Read(ctx, Blogs, "b1")
	require.NoError(t, err)
	assert.Equal(t, "one", decode(t, got).Subdomain)

	_, err = os.Stat(filepath.Join(dir, "blogs.json"))
	assert.NoError(t, err, "fallback writes into the configured data dir")
}

func TestOpenFileDriverSkipsProbe(t *testing.T) {
	cfg := &coreconfig.Config{Storage: coreconfig.StorageConfig{Driver: coreconfig.StorageFile, DataDir: t.TempDir()}}
	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "file", b.Name())
}

func TestPrepareDoesNotFallBack(t *testing.T) {
	cfg := &coreconfig.Config{
		Storage: coreconfig.StorageConfig{Driver: coreconfig.StorageMongo, DataDir: t.TempDir()},
		Mongo:   coreconfig.MongoConfig{URI: "mongodb://127.0.0.1:1", Database: "teleblog"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, Prepare(ctx, cfg))
}
