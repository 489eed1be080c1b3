package api

import (
	"log/slog"
	"net/http"
	"os"

	"gallerygo/pkg/catalog"
	"gallerygo/pkg/metastore"
	"gallerygo/pkg/pngmeta"
)

// MetaHandler serves per-image metadata: extraction-derived fields from the
// file itself merged under the user's stored edits.
type MetaHandler struct {
	root func() string
	meta *metastore.Store
}

// NewMetaHandler creates a MetaHandler.
func NewMetaHandler(root func() string, meta *metastore.Store) *MetaHandler {
	return &MetaHandler{root: root, meta: meta}
}

// HandleGetMeta returns the merged metadata for one image. Stored user edits
// win over extraction-derived fields.
func (h *MetaHandler) HandleGetMeta(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}
	abs, err := catalog.SafeJoin(h.root(), filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	if _, err := os.Stat(abs); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	merged := map[string]any{}
	extracted, err := pngmeta.Extract(abs)
	if err != nil {
		// Extraction failure is soft: stored edits alone still answer.
		slog.Warn("metadata extraction failed", "file", filename, "error", err)
	} else {
		for k, v := range extracted {
			merged[k] = v
		}
	}
	for k, v := range h.meta.Get(filename) {
		merged[k] = v
	}

	writeOK(w, map[string]any{"meta": merged})
}

type metaRequest struct {
	Filename string         `json:"filename"`
	Meta     map[string]any `json:"meta"`
}

// HandleSetMeta shallow-merges the provided fields into the stored record
// and returns the stored result.
func (h *MetaHandler) HandleSetMeta(w http.ResponseWriter, r *http.Request) {
	var req metaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}
	if len(req.Meta) == 0 {
		writeError(w, http.StatusBadRequest, "missing meta")
		return
	}
	if _, err := catalog.SafeJoin(h.root(), req.Filename); err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}

	if err := h.meta.Set(req.Filename, metastore.Record(req.Meta)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"meta": h.meta.Get(req.Filename)})
}
