package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "gallery.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "127.0.0.1:8790", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Thumbs.MaxEdge)
	assert.Equal(t, time.Hour, cfg.Access.DecisionTTL.D())
	assert.Equal(t, time.Minute, cfg.Access.RequestTTL.D())
}

func TestLoadMergesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	content := `
server:
  addr: "0.0.0.0:9999"
thumbs:
  max_edge: 512
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Addr)
	assert.Equal(t, 512, cfg.Thumbs.MaxEdge)
	// Unspecified values keep their defaults.
	assert.Equal(t, "output", cfg.Gallery.Root)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GALLERY_ROOT", "/tmp/somewhere")
	t.Setenv("GALLERY_ADDR", "127.0.0.1:1234")

	cfg, err := Load(filepath.Join(t.TempDir(), "gallery.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/somewhere", cfg.Gallery.Root)
	assert.Equal(t, "127.0.0.1:1234", cfg.Server.Addr)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGenerateDefaultIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	require.NoError(t, GenerateDefault(path))

	require.NoError(t, os.WriteFile(path, []byte("marker"), 0o644))
	require.NoError(t, GenerateDefault(path), "existing file is left alone")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "marker", string(data))
}

func TestDurationYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	content := `
watch:
  poll_interval: 5s
access:
  decision_ttl: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Watch.PollInterval.D())
	assert.Equal(t, 30*time.Minute, cfg.Access.DecisionTTL.D())
}
