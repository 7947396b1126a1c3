// Package config contains tests for configuration loading and validation.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "data", cfg.Store.Dir)
	require.Equal(t, 8, cfg.Fetch.Workers)
	require.Equal(t, 1000, cfg.Fetch.MaxBatch)
	require.Equal(t, 30*time.Second, cfg.FetchTimeout())
	require.Equal(t, 5*time.Minute, cfg.JobsCacheTTL())
	require.True(t, cfg.Logging.Development)
	require.False(t, cfg.Auth.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9191
store:
  dir: /tmp/stores
fetch:
  workers: 4
  max_batch: 50
jobs:
  cache_ttl_minutes: 1
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "/tmp/stores", cfg.Store.Dir)
	require.Equal(t, 4, cfg.Fetch.Workers)
	require.Equal(t, 50, cfg.Fetch.MaxBatch)
	require.Equal(t, time.Minute, cfg.JobsCacheTTL())
	// Untouched keys keep their defaults.
	require.Equal(t, 30, cfg.Fetch.TimeoutSeconds)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Fetch.Workers = -1
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Dir = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = ""
	require.Error(t, cfg.Validate())
}
