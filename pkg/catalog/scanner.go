package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner walks the gallery tree. It holds no state beyond its options and is
// safe for concurrent use.
type Scanner struct{}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan enumerates all regular files under root whose extension is in exts
// (lowercase, with dot), newest first. The reserved thumbnail directory and
// anything following its naming convention are excluded. limit > 0 truncates
// the sorted result.
func (s *Scanner) Scan(root string, exts []string, limit int) []ImageRecord {
	if _, err := os.Stat(root); err != nil {
		return nil
	}

	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = struct{}{}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil
	}
	thumbsDir := filepath.Join(absRoot, ThumbsDirName)

	var items []ImageRecord
	_ = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree; keep walking the rest.
			return nil
		}
		if d.IsDir() {
			if p == thumbsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		// Defensive double-filtering: a thumbnail copied out of _thumbs still
		// follows the cache naming convention.
		if isThumbName(name) {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// File vanished between enumeration and stat; not an error.
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		relNorm := filepath.ToSlash(rel)

		items = append(items, ImageRecord{
			Name:       name,
			RelPath:    relNorm,
			Folder:     FolderOf(relNorm),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})

	// Newest first; stable keeps discovery order for equal mtimes.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ModifiedAt.After(items[j].ModifiedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// isThumbName reports whether name matches the thumbnail cache convention:
// a 16-hex-digit digest followed by an image extension.
func isThumbName(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) != 16 {
		return false
	}
	for _, c := range base {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
