package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := LoadServer(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":3003", cfg.Addr)
	assert.Equal(t, PersistFile, cfg.Persist)
	assert.Equal(t, "metadata.json", cfg.SnapshotPath)
	assert.Equal(t, "public/upload", cfg.UploadDir)
	assert.Equal(t, int64(16), cfg.MaxUploadMB)
	assert.Equal(t, "overlay.state", cfg.NATSSubject)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadServer_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OVERLAY_ADDR=:9999\nOVERLAY_PERSIST=sqlite\nOVERLAY_ALLOWED_ORIGINS=obs.local,studio.local\n"), 0o644))
	// godotenv writes into the process environment; register cleanup for its keys.
	t.Setenv("OVERLAY_ADDR", "")
	t.Setenv("OVERLAY_PERSIST", "")
	t.Setenv("OVERLAY_ALLOWED_ORIGINS", "")
	os.Unsetenv("OVERLAY_ADDR")
	os.Unsetenv("OVERLAY_PERSIST")
	os.Unsetenv("OVERLAY_ALLOWED_ORIGINS")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, PersistSQLite, cfg.Persist)
	assert.Equal(t, []string{"obs.local", "studio.local"}, cfg.AllowedOrigins)
}

func TestLoadServer_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OVERLAY_ADDR=:9999\n"), 0o644))
	t.Setenv("OVERLAY_ADDR", ":4000")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Addr)
}

func TestLoadServer_Rejects(t *testing.T) {
	t.Run("unknown persister", func(t *testing.T) {
		t.Setenv("OVERLAY_PERSIST", "redis")
		_, err := LoadServer("")
		assert.ErrorContains(t, err, "unknown OVERLAY_PERSIST")
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("OVERLAY_PERSIST", "postgres")
		t.Setenv("OVERLAY_POSTGRES_DSN", "")
		_, err := LoadServer("")
		assert.ErrorContains(t, err, "OVERLAY_POSTGRES_DSN")
	})
	t.Run("bad number", func(t *testing.T) {
		t.Setenv("OVERLAY_MAX_UPLOAD_MB", "lots")
		_, err := LoadServer("")
		assert.Error(t, err)
	})
}

func TestLoadEditor(t *testing.T) {
	t.Setenv("OVERLAY_WS_URL", "ws://hub:3003/ws")
	t.Setenv("OVERLAY_RECONNECT_DELAY", "500ms")

	cfg, err := LoadEditor("")
	require.NoError(t, err)
	assert.Equal(t, "ws://hub:3003/ws", cfg.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 3003, cfg.FallbackPort)
	assert.Equal(t, "localhost", cfg.Host)
}
