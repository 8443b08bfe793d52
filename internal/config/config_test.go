package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no config.yaml present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "logs", cfg.Store.Dir)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.VisionModel)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.AnswerModel)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "http://localhost:8080", cfg.Weaviate.BaseURL)
	assert.Equal(t, "Deal", cfg.Weaviate.Collection)
	assert.InDelta(t, 0.5, cfg.Weaviate.Alpha, 1e-9)
	assert.Equal(t, 20, cfg.Weaviate.Limit)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "logs/failed_extractions", cfg.Retry.ArtifactDir)
	assert.Equal(t, 3, cfg.Process.Concurrency)
	assert.InDelta(t, 20, cfg.Process.RatePerMin, 1e-9)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Server.MaxQueryLen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Zero(t, cfg.Reconcile.MinRelevantFraction, "strict trust is the default")
	assert.Equal(t, 5, cfg.Reconcile.TopFallback)
	assert.Contains(t, cfg.Reconcile.NoDealsPhrases, "couldn't find any deals")
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
store:
  driver: sqlite
  database_url: file:queue.db
weaviate:
  collection: BlackFridayDeal
  alpha: 0.75
server:
  port: 9000
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:queue.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "BlackFridayDeal", cfg.Weaviate.Collection)
	assert.InDelta(t, 0.75, cfg.Weaviate.Alpha, 1e-9)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "http://localhost:8080", cfg.Weaviate.BaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadBadConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [not: a map"), 0o644))
	chdir(t, dir)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DEALZEN_STORE_DRIVER", "postgres")
	t.Setenv("DEALZEN_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "chatty", Format: "json"}))
}
