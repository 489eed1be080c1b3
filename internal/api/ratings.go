package api

import (
	"fmt"
	"net/http"

	"gallerygo/pkg/catalog"
	"gallerygo/pkg/metastore"
)

// RatingsHandler serves the ratings read and write endpoints.
type RatingsHandler struct {
	root func() string
	meta *metastore.Store
}

// NewRatingsHandler creates a RatingsHandler.
func NewRatingsHandler(root func() string, meta *metastore.Store) *RatingsHandler {
	return &RatingsHandler{root: root, meta: meta}
}

type ratingRequest struct {
	Filename string `json:"filename"`
	Rating   int    `json:"rating"`
}

// HandleSetRating stores a rating for one image. Values outside [0,5] are
// clamped by the store.
func (h *RatingsHandler) HandleSetRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}
	if _, err := catalog.SafeJoin(h.root(), req.Filename); err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	if err := h.meta.SetRating(req.Filename, req.Rating); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save rating: %v", err))
		return
	}
	writeOK(w, nil)
}

// HandleGetRatings returns the full filename-to-rating mapping.
func (h *RatingsHandler) HandleGetRatings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.meta.Ratings())
}
