package api

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gallerygo/pkg/access"
	"gallerygo/pkg/catalog"
	"gallerygo/pkg/index"
	"gallerygo/pkg/metastore"
)

// FilesHandler serves the filesystem mutation endpoints and batch
// operations. Every path is checked against the catalog root before any
// filesystem operation; metadata and index keys follow renames and moves.
type FilesHandler struct {
	root   func() string
	meta   *metastore.Store
	idx    *index.DB
	filter *access.Filter
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(root func() string, meta *metastore.Store, idx *index.DB, filter *access.Filter) *FilesHandler {
	return &FilesHandler{root: root, meta: meta, idx: idx, filter: filter}
}

// mutated invalidates listing caches after any filesystem change.
func (h *FilesHandler) mutated() {
	h.filter.InvalidateRequests()
}

type batchDeleteRequest struct {
	Filenames []string `json:"filenames"`
}

// HandleBatchDelete deletes a set of files, reporting per-file failures
// without aborting the batch.
func (h *FilesHandler) HandleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Filenames) == 0 {
		writeError(w, http.StatusBadRequest, "missing filenames")
		return
	}

	root := h.root()
	deleted := []string{}
	errs := []string{}
	for _, name := range req.Filenames {
		abs, err := catalog.SafeJoin(root, name)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid path", name))
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			// os.Remove would also delete an empty directory.
			errs = append(errs, fmt.Sprintf("%s: not a file", name))
			continue
		}
		if err := os.Remove(abs); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if err := h.idx.Remove(name); err != nil {
			slog.Warn("index remove failed", "file", name, "error", err)
		}
		deleted = append(deleted, name)
	}
	h.mutated()

	writeOK(w, map[string]any{
		"deleted": deleted,
		"errors":  errs,
		"count":   len(deleted),
	})
}

// HandleBatchDownload streams the requested files as a ZIP archive. Missing
// or invalid entries are skipped rather than failing the archive.
func (h *FilesHandler) HandleBatchDownload(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("filenames")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing filenames")
		return
	}

	root := h.root()
	viewer := viewerFrom(r)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="gallery.zip"`)

	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		abs, err := catalog.SafeJoin(root, name)
		if err != nil {
			continue
		}
		if !h.filter.Allowed(r.Context(), viewer, root, name) {
			continue
		}
		if err := addZipEntry(zw, abs, name); err != nil {
			slog.Warn("zip entry failed", "file", name, "error", err)
		}
	}
}

func addZipEntry(zw *zip.Writer, abs, name string) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

type renameRequest struct {
	Filename string `json:"filename"`
	NewName  string `json:"new_name"`
}

// HandleRename renames a file within its folder, migrating metadata, rating
// and index keys.
func (h *FilesHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" || req.NewName == "" {
		writeError(w, http.StatusBadRequest, "missing filename or new_name")
		return
	}
	if strings.ContainsAny(req.NewName, `/\`) {
		writeError(w, http.StatusBadRequest, "new_name must not contain path separators")
		return
	}

	newRel := path.Join(path.Dir(req.Filename), req.NewName)
	if path.Dir(req.Filename) == "." {
		newRel = req.NewName
	}
	h.moveEntry(w, req.Filename, newRel)
}

type moveFileRequest struct {
	Filename    string `json:"filename"`
	Destination string `json:"destination"`
}

// HandleMoveFile moves a file to another folder ("" means the root).
func (h *FilesHandler) HandleMoveFile(w http.ResponseWriter, r *http.Request) {
	var req moveFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}

	newRel := path.Base(req.Filename)
	if req.Destination != "" {
		newRel = path.Join(req.Destination, path.Base(req.Filename))
	}
	h.moveEntry(w, req.Filename, newRel)
}

// moveEntry implements the shared rename/move path for single files.
func (h *FilesHandler) moveEntry(w http.ResponseWriter, oldRel, newRel string) {
	root := h.root()
	oldAbs, err := catalog.SafeJoin(root, oldRel)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	newAbs, err := catalog.SafeJoin(root, newRel)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid destination")
		return
	}
	if _, err := os.Stat(oldAbs); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if _, err := os.Stat(newAbs); err == nil {
		writeError(w, http.StatusBadRequest, "destination already exists")
		return
	}

	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.migrateKeys(oldRel, newRel)
	h.mutated()
	writeOK(w, map[string]any{"filename": newRel})
}

func (h *FilesHandler) migrateKeys(oldRel, newRel string) {
	if err := h.meta.RenameKey(oldRel, newRel); err != nil {
		slog.Warn("metadata key migration failed", "from", oldRel, "to", newRel, "error", err)
	}
	if err := h.idx.Rename(oldRel, newRel); err != nil {
		slog.Warn("index key migration failed", "from", oldRel, "to", newRel, "error", err)
	}
}

type renameFolderRequest struct {
	Folder  string `json:"folder"`
	NewName string `json:"new_name"`
}

// HandleRenameFolder renames a folder, migrating keys for every file inside.
func (h *FilesHandler) HandleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var req renameFolderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Folder == "" || req.NewName == "" {
		writeError(w, http.StatusBadRequest, "missing folder or new_name")
		return
	}
	if strings.ContainsAny(req.NewName, `/\`) {
		writeError(w, http.StatusBadRequest, "new_name must not contain path separators")
		return
	}

	newRel := req.NewName
	if dir := path.Dir(req.Folder); dir != "." {
		newRel = path.Join(dir, req.NewName)
	}
	h.moveFolder(w, req.Folder, newRel)
}

type moveFolderRequest struct {
	Folder      string `json:"folder"`
	Destination string `json:"destination"`
}

// HandleMoveFolder moves a folder under another folder ("" means the root).
func (h *FilesHandler) HandleMoveFolder(w http.ResponseWriter, r *http.Request) {
	var req moveFolderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Folder == "" {
		writeError(w, http.StatusBadRequest, "missing folder")
		return
	}

	newRel := path.Base(req.Folder)
	if req.Destination != "" {
		newRel = path.Join(req.Destination, path.Base(req.Folder))
	}
	h.moveFolder(w, req.Folder, newRel)
}

func (h *FilesHandler) moveFolder(w http.ResponseWriter, oldRel, newRel string) {
	root := h.root()
	oldAbs, err := catalog.SafeJoin(root, oldRel)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	newAbs, err := catalog.SafeJoin(root, newRel)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid destination")
		return
	}
	info, err := os.Stat(oldAbs)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}
	if _, err := os.Stat(newAbs); err == nil {
		writeError(w, http.StatusBadRequest, "destination already exists")
		return
	}
	if strings.HasPrefix(newRel+"/", oldRel+"/") {
		writeError(w, http.StatusBadRequest, "cannot move a folder into itself")
		return
	}

	// Collect contained files first so their keys can follow the move.
	contained := containedFiles(oldAbs, root)

	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, rel := range contained {
		suffix := strings.TrimPrefix(rel, oldRel+"/")
		h.migrateKeys(rel, newRel+"/"+suffix)
	}
	h.mutated()
	writeOK(w, map[string]any{"folder": newRel})
}

// containedFiles lists the relative paths of all regular files under dir.
func containedFiles(dir, root string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out
}

type folderRequest struct {
	Folder string `json:"folder"`
}

// HandleCreateFolder creates a folder under the catalog root.
func (h *FilesHandler) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Folder == "" {
		writeError(w, http.StatusBadRequest, "missing folder")
		return
	}
	abs, err := catalog.SafeJoin(h.root(), req.Folder)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.mutated()
	writeOK(w, map[string]any{"folder": req.Folder})
}

// HandleDeleteFolder removes a folder and everything beneath it.
func (h *FilesHandler) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Folder == "" {
		writeError(w, http.StatusBadRequest, "missing folder")
		return
	}
	root := h.root()
	abs, err := catalog.SafeJoin(root, req.Folder)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	if absRoot, err := filepath.Abs(root); err == nil && abs == absRoot {
		writeError(w, http.StatusBadRequest, "cannot delete the gallery root")
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}

	contained := containedFiles(abs, root)
	if err := os.RemoveAll(abs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, rel := range contained {
		if err := h.idx.Remove(rel); err != nil {
			slog.Warn("index remove failed", "file", rel, "error", err)
		}
	}
	h.mutated()
	writeOK(w, nil)
}

type deleteFileRequest struct {
	Filename string `json:"filename"`
}

// HandleDeleteFile removes a single file.
func (h *FilesHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	var req deleteFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}
	abs, err := catalog.SafeJoin(h.root(), req.Filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		// os.Remove would also delete an empty directory.
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err := os.Remove(abs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.idx.Remove(req.Filename); err != nil {
		slog.Warn("index remove failed", "file", req.Filename, "error", err)
	}
	h.mutated()
	writeOK(w, nil)
}
