package api

import (
	"net/http"
	"os"

	"gallerygo/pkg/config"
	"gallerygo/pkg/watcher"
)

// SettingsHandler serves the runtime-mutable settings and propagates changes
// to the file monitor. root resolves the effective gallery root after a
// custom_root update.
type SettingsHandler struct {
	settings *config.SettingsStore
	monitor  *watcher.Service
	root     func() string
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings *config.SettingsStore, monitor *watcher.Service, root func() string) *SettingsHandler {
	return &SettingsHandler{settings: settings, monitor: monitor, root: root}
}

// HandleGet returns the current settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"settings": h.settings.Get()})
}

// HandleSet replaces the settings, persists them, and reconfigures the file
// monitor when the tracked extensions, polling mode or gallery root changed.
func (h *SettingsHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	var next config.Settings
	if err := decodeBody(r, &next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(next.Extensions) == 0 {
		writeError(w, http.StatusBadRequest, "extensions must not be empty")
		return
	}
	if next.CustomRoot != "" {
		info, err := os.Stat(next.CustomRoot)
		if err != nil || !info.IsDir() {
			writeError(w, http.StatusBadRequest, "custom_root is not a directory")
			return
		}
	}

	if err := h.settings.Update(next); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	applied := h.settings.Get()
	if h.monitor != nil {
		h.monitor.UpdateExtensions(applied.Extensions)
		if h.root != nil {
			h.monitor.UpdateRoot(h.root())
		}
		h.monitor.UpdatePolling(applied.Polling)
	}

	writeOK(w, map[string]any{"settings": applied})
}
