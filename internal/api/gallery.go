package api

import (
	"log/slog"
	"net/http"
	"sort"

	"gallerygo/pkg/access"
	"gallerygo/pkg/catalog"
	"gallerygo/pkg/index"
	"gallerygo/pkg/metastore"
)

// GalleryHandler serves the catalog listing and the index-backed operations
// (favorites, purge, search).
type GalleryHandler struct {
	root    func() string
	exts    func() []string
	limit   int
	scanner *catalog.Scanner
	filter  *access.Filter
	meta    *metastore.Store
	idx     *index.DB
}

// NewGalleryHandler creates a GalleryHandler.
func NewGalleryHandler(root func() string, exts func() []string, limit int, scanner *catalog.Scanner, filter *access.Filter, meta *metastore.Store, idx *index.DB) *GalleryHandler {
	return &GalleryHandler{
		root:    root,
		exts:    exts,
		limit:   limit,
		scanner: scanner,
		filter:  filter,
		meta:    meta,
		idx:     idx,
	}
}

// listImage is one catalog entry enriched with stored user edits.
type listImage struct {
	catalog.ImageRecord
	Rating   int      `json:"rating"`
	Tags     []string `json:"tags,omitempty"`
	Title    string   `json:"title,omitempty"`
	Favorite bool     `json:"favorite"`
}

// HandleList returns the filtered, metadata-enriched catalog listing.
func (h *GalleryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	root := h.root()
	images := h.scanner.Scan(root, h.exts(), h.limit)
	images = h.filter.Filter(r.Context(), viewerFrom(r), root, images)

	if term := r.URL.Query().Get("search"); term != "" {
		matches, err := h.idx.Search(term)
		if err != nil {
			slog.Error("search failed", "term", term, "error", err)
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		narrowed := images[:0:0]
		for _, img := range images {
			if matches[img.RelPath] {
				narrowed = append(narrowed, img)
			}
		}
		images = narrowed
	}

	ratings := h.meta.Ratings()
	favorites, err := h.idx.Favorites()
	if err != nil {
		slog.Warn("favorites lookup failed", "error", err)
		favorites = map[string]bool{}
	}

	out := make([]listImage, 0, len(images))
	folderSet := map[string]struct{}{}
	for _, img := range images {
		rec := h.meta.Get(img.RelPath)
		out = append(out, listImage{
			ImageRecord: img,
			Rating:      ratings[img.RelPath],
			Tags:        toStrings(rec["tags"]),
			Title:       toString(rec["title"]),
			Favorite:    favorites[img.RelPath],
		})
		if img.Folder != "" {
			folderSet[img.Folder] = struct{}{}
		}
	}

	folders := make([]string, 0, len(folderSet))
	for f := range folderSet {
		folders = append(folders, f)
	}
	sort.Strings(folders)

	writeOK(w, map[string]any{"images": out, "folders": folders})
}

type favoriteRequest struct {
	Filename string `json:"filename"`
	Favorite bool   `json:"favorite"`
}

// HandleFavorite toggles the favorite flag for one image.
func (h *GalleryHandler) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
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
	if err := h.idx.SetFavorite(req.Filename, req.Favorite); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"favorite": req.Favorite})
}

// HandlePurge hard-deletes all soft-deleted index rows.
func (h *GalleryHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := h.idx.Purge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"purged": n})
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// toStrings accepts both []string and the []any shape produced by a JSON
// round trip.
func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
