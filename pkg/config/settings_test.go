package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	s := LoadSettings(filepath.Join(t.TempDir(), "settings.json"), Settings{
		Extensions: []string{"PNG", ".jpg"},
	})

	got := s.Get()
	assert.Equal(t, []string{".jpg", ".png"}, got.Extensions, "defaults normalized")
	assert.False(t, got.Polling)
}

func TestSettingsUpdatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := LoadSettings(path, Settings{Extensions: []string{".png"}})
	require.NoError(t, s.Update(Settings{
		Extensions: []string{"webp", ".PNG", "webp"},
		Polling:    true,
		CustomRoot: "/somewhere",
	}))

	reloaded := LoadSettings(path, Settings{Extensions: []string{".gif"}})
	got := reloaded.Get()
	assert.Equal(t, []string{".png", ".webp"}, got.Extensions, "normalized and de-duplicated")
	assert.True(t, got.Polling)
	assert.Equal(t, "/somewhere", got.CustomRoot)
}

func TestLoadSettingsCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	s := LoadSettings(path, Settings{Extensions: []string{".png"}})
	assert.Equal(t, []string{".png"}, s.Get().Extensions)
}

func TestSettingsGetReturnsCopy(t *testing.T) {
	s := LoadSettings(filepath.Join(t.TempDir(), "settings.json"), Settings{Extensions: []string{".png"}})

	got := s.Get()
	got.Extensions[0] = ".hacked"
	assert.Equal(t, []string{".png"}, s.Get().Extensions)
}

func TestNormalizeExtensions(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"adds dot and lowers", []string{"PNG", "jpg"}, []string{".jpg", ".png"}},
		{"dedupes", []string{".png", "png", ".PNG"}, []string{".png"}},
		{"drops empties", []string{"", "  ", ".gif"}, []string{".gif"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeExtensions(tt.in))
		})
	}
}
