package api

import (
	"net/http"

	"gallerygo/pkg/watcher"
)

// WatchHandler reports file-monitor status for poll-based clients.
type WatchHandler struct {
	monitor *watcher.Service
}

// NewWatchHandler creates a WatchHandler.
func NewWatchHandler(monitor *watcher.Service) *WatchHandler {
	return &WatchHandler{monitor: monitor}
}

// HandleStatus returns whether live file monitoring is active.
func (h *WatchHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	monitoring := h.monitor != nil && h.monitor.Running()
	writeOK(w, map[string]any{"monitoring": monitoring})
}
