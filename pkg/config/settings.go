package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Settings are the runtime-mutable knobs exposed by the settings endpoint.
// Unlike Config they change while the server runs and persist as JSON under
// the data directory.
type Settings struct {
	Extensions []string `json:"extensions"`
	Polling    bool     `json:"polling"`
	CustomRoot string   `json:"custom_root,omitempty"`
}

// SettingsStore persists Settings with atomic replace semantics.
// Concurrent writers are last-write-wins; the deployment is single-user.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

// LoadSettings reads settings from path, falling back to the given defaults
// when the file is missing or unreadable.
func LoadSettings(path string, defaults Settings) *SettingsStore {
	defaults.Extensions = NormalizeExtensions(defaults.Extensions)
	s := &SettingsStore{path: path, current: defaults}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var stored Settings
	if err := json.Unmarshal(data, &stored); err != nil {
		// Corrupt settings are treated as absent.
		return s
	}
	if len(stored.Extensions) > 0 {
		stored.Extensions = NormalizeExtensions(stored.Extensions)
	} else {
		stored.Extensions = defaults.Extensions
	}
	s.current = stored
	return s
}

// Get returns a snapshot of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	out.Extensions = append([]string(nil), s.current.Extensions...)
	return out
}

// Update replaces the current settings and persists them.
func (s *SettingsStore) Update(next Settings) error {
	next.Extensions = NormalizeExtensions(next.Extensions)

	s.mu.Lock()
	s.current = next
	snapshot := s.current
	s.mu.Unlock()

	return s.write(snapshot)
}

func (s *SettingsStore) write(snapshot Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// NormalizeExtensions lowercases, prefixes the dot and de-duplicates an
// extension list, keeping the output sorted for stable comparisons.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
