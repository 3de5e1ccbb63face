package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Cache.Capacity)
	assert.Equal(t, "local", cfg.Provider.Mode)
}

func TestParse(t *testing.T) {
	t.Run("overlays defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
server:
  port: 9000
cache:
  capacity: 3
  load_timeout: 5s
provider:
  mode: s3
  s3:
    endpoint: http://minio:9000
    access_key: a
    secret_key: b
`))
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 3, cfg.Cache.Capacity)
		assert.Equal(t, 5*time.Second, cfg.Cache.LoadTimeout)
		assert.Equal(t, "s3", cfg.Provider.Mode)
		assert.Equal(t, "us-east-1", cfg.Provider.S3.Region, "default kept")
		assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Parse([]byte("server: ["))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Cache.Capacity = 0
	cfg.Provider.Mode = "ftp"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "cache.capacity")
	assert.Contains(t, err.Error(), "provider.mode")

	cfg = Default()
	cfg.Provider.Mode = "s3"
	assert.Error(t, cfg.Validate(), "s3 mode needs credentials")

	cfg = Default()
	cfg.Server.RequestBurst = 0
	assert.Error(t, cfg.Validate(), "limiting needs a burst")

	cfg.Server.RequestsPerSecond = 0
	assert.NoError(t, cfg.Validate(), "disabled limiting ignores the burst")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VIEWERCORE_PORT", "7070")
	t.Setenv("VIEWERCORE_CACHE_CAPACITY", "25")
	t.Setenv("VIEWERCORE_LOG_LEVEL", "debug")
	t.Setenv("VIEWERCORE_PROVIDER", "postgres")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Cache.Capacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Provider.Mode)
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Cache.Capacity)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("file is validated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "viewer.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cache:\n  capacity: -1\n"), 0600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  capacity: 4\n"), 0600))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, zap.NewNop(), func(c *Config) { changes <- c })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  capacity: 12\n"), 0600))

	select {
	case cfg := <-changes:
		assert.Equal(t, 12, cfg.Cache.Capacity)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	require.NoError(t, w.Close())
}
