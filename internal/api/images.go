package api

import (
	"log/slog"
	"net/http"
	"os"

	"gallerygo/pkg/access"
	"gallerygo/pkg/catalog"
	"gallerygo/pkg/thumbs"
)

// ImageHandler serves original images and their thumbnails.
type ImageHandler struct {
	root   func() string
	filter *access.Filter
	thumbs *thumbs.Cache
}

// NewImageHandler creates an ImageHandler.
func NewImageHandler(root func() string, filter *access.Filter, cache *thumbs.Cache) *ImageHandler {
	return &ImageHandler{root: root, filter: filter, thumbs: cache}
}

// HandleGetImage streams an image file, or its thumbnail when size=thumb.
// Thumbnail generation failures fall back to the original file.
func (h *ImageHandler) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}

	root := h.root()
	abs, err := catalog.SafeJoin(root, filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	if !h.filter.Allowed(r.Context(), viewerFrom(r), root, filename) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	serve := abs
	if r.URL.Query().Get("size") == "thumb" {
		if thumbPath, err := h.thumbs.GetOrCreate(root, abs, filename); err == nil {
			serve = thumbPath
		} else {
			slog.Warn("thumbnail generation failed, serving original", "file", filename, "error", err)
		}
	}

	http.ServeFile(w, r, serve)
}
