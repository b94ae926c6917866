package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 2, cfg.Crawler.Workers)
	require.Equal(t, 10, cfg.Crawler.MaxPagesDefault)
	require.Equal(t, 100, cfg.Crawler.MaxPagesLimit)
	require.Equal(t, "local", cfg.Storage.Backend)
	require.Equal(t, 8, cfg.Assets.Concurrency)
	require.InDelta(t, 15, cfg.Imaging.BlurThreshold, 0.001)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
crawler:
  workers: 4
  max_pages_default: 25
  max_pages_limit: 200
storage:
  backend: gcs
  gcs_bucket: brandkit-artifacts
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.Workers)
	require.Equal(t, 25, cfg.Crawler.MaxPagesDefault)
	require.Equal(t, "gcs", cfg.Storage.Backend)
	require.Equal(t, "brandkit-artifacts", cfg.Storage.GCSBucket)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BRANDKIT_SERVER_PORT", "7070")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("gcs backend requires a bucket", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Backend = "gcs"
		cfg.Storage.GCSBucket = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown backend is rejected", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Backend = "s3"
		require.Error(t, cfg.Validate())
	})

	t.Run("auth needs a key when enabled", func(t *testing.T) {
		cfg := base()
		cfg.Auth.Enabled = true
		require.Error(t, cfg.Validate())
		cfg.Auth.APIKey = "secret"
		require.NoError(t, cfg.Validate())
	})

	t.Run("page limit must cover the default", func(t *testing.T) {
		cfg := base()
		cfg.Crawler.MaxPagesLimit = 5
		require.Error(t, cfg.Validate())
	})

	t.Run("pubsub project needs a topic", func(t *testing.T) {
		cfg := base()
		cfg.PubSub.ProjectID = "proj"
		require.Error(t, cfg.Validate())
		cfg.PubSub.TopicName = "crawl-events"
		require.NoError(t, cfg.Validate())
	})
}
