// Package thumbs maintains the on-demand thumbnail cache under the gallery's
// reserved _thumbs directory.
package thumbs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	// Decoder registrations so every tracked extension thumbnails.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"gallerygo/pkg/catalog"
)

// warmBatchSize is how many thumbnails a warm pass generates before yielding.
const warmBatchSize = 5

// warmBatchPause keeps the server responsive between warm batches.
const warmBatchPause = 100 * time.Millisecond

// Cache derives and serves thumbnails keyed by the source's relative path.
// The gallery root is passed per call so a runtime root switch takes effect
// immediately.
type Cache struct {
	maxEdge int

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New creates a Cache. maxEdge caps the longer edge of generated thumbnails.
func New(maxEdge int) *Cache {
	return &Cache{
		maxEdge:  maxEdge,
		inflight: make(map[string]chan struct{}),
	}
}

// Dir returns the thumbnail directory under root.
func (c *Cache) Dir(root string) string {
	return filepath.Join(root, catalog.ThumbsDirName)
}

// Key derives the cache file name for a relative path. Nested paths hash to
// avoid collisions between same-named files in different folders; bare names
// keep the legacy fast path for root-level files.
func Key(relPath string) string {
	if !strings.Contains(relPath, "/") {
		return relPath
	}
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:])[:16] + filepath.Ext(relPath)
}

// GetOrCreate returns the path of a fresh thumbnail for the source image
// under root, regenerating when the cached copy is missing or older than the
// source. Callers fall back to serving the original on error.
func (c *Cache) GetOrCreate(root, absSource, relPath string) (string, error) {
	thumbDir := c.Dir(root)
	thumbPath := filepath.Join(thumbDir, Key(relPath))

	srcInfo, err := os.Stat(absSource)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	if fresh(thumbPath, srcInfo.ModTime()) {
		return thumbPath, nil
	}

	// In-flight guard keyed on the destination path: concurrent requests
	// for the same missing thumbnail wait for the first generator instead
	// of racing.
	c.mu.Lock()
	ch, running := c.inflight[thumbPath]
	if running {
		c.mu.Unlock()
		<-ch
		if fresh(thumbPath, srcInfo.ModTime()) {
			return thumbPath, nil
		}
		return "", fmt.Errorf("thumbnail generation failed for %s", relPath)
	}
	ch = make(chan struct{})
	c.inflight[thumbPath] = ch
	c.mu.Unlock()

	genErr := c.generate(absSource, thumbDir, thumbPath)

	c.mu.Lock()
	delete(c.inflight, thumbPath)
	c.mu.Unlock()
	close(ch)

	if genErr != nil {
		return "", genErr
	}
	return thumbPath, nil
}

// Warm pre-generates thumbnails for the given records in small batches with a
// short yield in between, so a large catalog does not monopolise the process.
func (c *Cache) Warm(root string, records []catalog.ImageRecord) {
	for i := 0; i < len(records); i += warmBatchSize {
		end := i + warmBatchSize
		if end > len(records) {
			end = len(records)
		}
		for _, rec := range records[i:end] {
			abs, err := catalog.SafeJoin(root, rec.RelPath)
			if err != nil {
				continue
			}
			_, _ = c.GetOrCreate(root, abs, rec.RelPath)
		}
		if end < len(records) {
			time.Sleep(warmBatchPause)
		}
	}
}

func (c *Cache) generate(absSource, thumbDir, thumbPath string) error {
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return fmt.Errorf("create thumbs dir: %w", err)
	}

	f, err := os.Open(absSource)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode source: %w", err)
	}

	dst := scaleDown(src, c.maxEdge)

	tmp := thumbPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, thumbPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace thumbnail: %w", err)
	}
	return nil
}

// scaleDown resizes preserving aspect ratio so the longer edge is at most
// maxEdge. Images already within bounds are re-encoded unscaled.
func scaleDown(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = h * maxEdge / w
	} else {
		nh = maxEdge
		nw = w * maxEdge / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// fresh reports whether the cached thumbnail exists and is not older than the
// source.
func fresh(thumbPath string, srcMod time.Time) bool {
	info, err := os.Stat(thumbPath)
	if err != nil {
		return false
	}
	return !info.ModTime().Before(srcMod)
}
