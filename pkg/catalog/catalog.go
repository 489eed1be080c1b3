// Package catalog enumerates the gallery's image tree and guards every path
// the HTTP surface touches against traversal outside the root.
package catalog

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ThumbsDirName is the reserved subdirectory under the root that holds
// derived thumbnails. It is never listed.
const ThumbsDirName = "_thumbs"

// ImageRecord identifies one catalogued file. Records are rebuilt on every
// scan and never persisted; consumers treat them as immutable.
type ImageRecord struct {
	Name       string    `json:"filename"`
	RelPath    string    `json:"relpath"`
	Folder     string    `json:"folder"`
	SizeBytes  int64     `json:"size"`
	ModifiedAt time.Time `json:"mtime"`
}

// ErrUnsafePath is returned when a requested path would escape the root.
var ErrUnsafePath = fmt.Errorf("path escapes gallery root")

// SafeJoin joins rel onto root and verifies the result stays inside root.
// rel uses forward slashes regardless of platform.
func SafeJoin(root, rel string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(root, filepath.FromSlash(rel))
	candidate, err = filepath.Abs(candidate)
	if err != nil {
		return "", err
	}
	if candidate != root && !strings.HasPrefix(candidate, root+string(os.PathSeparator)) {
		return "", ErrUnsafePath
	}
	return candidate, nil
}

// FolderOf derives the parent directory of a forward-slash relative path,
// empty string for root-level files.
func FolderOf(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
