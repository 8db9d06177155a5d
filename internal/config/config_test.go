package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "http://localhost:5000", cfg.Server.URL)
	require.Equal(t, "auto", cfg.Run.Device)
	require.True(t, cfg.Journal.Enabled)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.URL = "localhost"
	cfg.Run.Device = "tpu"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.url")
	require.Contains(t, err.Error(), "run.device")
	require.Contains(t, err.Error(), "logging.format")
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: http://bench.internal:5000
  stream_idle_timeout: 2m
run:
  device: cuda
  batch_size: "4"
global:
  data_dir: ~/pb-data
`), 0o644))

	t.Setenv("POCKETBENCH_RUN_VERBOSITY", "ERROR")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "http://bench.internal:5000", cfg.Server.URL)
	require.Equal(t, 2*time.Minute, cfg.Server.StreamIdleTimeout)
	require.Equal(t, "cuda", cfg.Run.Device)
	require.Equal(t, "4", cfg.Run.BatchSize)
	require.Equal(t, "ERROR", cfg.Run.Verbosity)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "pb-data"), cfg.Global.DataDir)
	require.Equal(t, filepath.Join(home, "pb-data", "journal.db"), cfg.JournalPath())
	require.Equal(t, filepath.Join(home, "pb-data", "settings.json"), cfg.SettingsPath())
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoaderSetOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	loader := NewLoader()
	loader.Set("server.url", "http://override:9000")
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "http://override:9000", cfg.Server.URL)
}
