package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStudioDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadStudio()
	require.NoError(t, err)

	assert.Equal(t, "3002", cfg.Port)
	assert.Equal(t, ":3002", cfg.Addr())
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeoutDuration())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 50, cfg.History.MaxEntries)
	assert.Equal(t, time.Second, cfg.History.MergeWindow)
	assert.Equal(t, 6.0, cfg.Snap.Threshold)
	assert.Equal(t, 4, cfg.Upload.Workers)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadRendererFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9100")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("CACHE_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadRenderer()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Cache.RedisURL)
	assert.Equal(t, 256, cfg.Cache.MaxEntries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STUDIO_URL=http://studio:3002\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("STUDIO_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://studio:3002", cfg.StudioURL)
	assert.Equal(t, "http://localhost:3001", cfg.RendererURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("READ_TIMEOUT", "soon")

	_, err := LoadStudio()
	assert.Error(t, err)
}
