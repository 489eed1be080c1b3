package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gallerygo/pkg/access"
)

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// writeOK writes {ok: true} merged with any extra fields.
func writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError writes {ok: false, error: msg} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// viewerFrom extracts the viewer identity from the request. The header is
// trusted; an absent or empty value means anonymous.
func viewerFrom(r *http.Request) access.Viewer {
	return access.Viewer{Name: r.Header.Get("X-Gallery-User")}
}
