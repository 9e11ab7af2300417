package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9053", cfg.NodeURL)
	assert.Equal(t, 5*time.Second, cfg.PollingInterval)
	assert.Equal(t, 9055, cfg.MonitorPort)
	assert.True(t, cfg.Workers.Timestamps)
	assert.True(t, cfg.Workers.Diffs)
	assert.True(t, cfg.Workers.Exchanges)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ew.yaml")
	content := []byte(`
node:
  url: http://node:9053
polling_interval: 2s
workers:
  coingecko: false
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://node:9053", cfg.NodeURL)
	assert.Equal(t, 2*time.Second, cfg.PollingInterval)
	assert.False(t, cfg.Workers.Coingecko)
	// Untouched keys keep their defaults.
	assert.True(t, cfg.Workers.Network)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EW_NODE_URL", "http://other:9053")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://other:9053", cfg.NodeURL)
}
