// Package access narrows image listings to what a viewer is permitted to
// see, consulting an external classification oracle through two layers of
// time-bounded caches.
//
// The fail-open/fail-closed asymmetry between anonymous and named viewers is
// intentional: anonymous access tolerates false negatives, named viewers
// tolerate false positives. Do not unify the two paths.
package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gallerygo/pkg/catalog"
	"gallerygo/pkg/config"
)

// Viewer identifies who is asking. An empty name is anonymous.
type Viewer struct {
	Name string
}

// Anonymous reports whether the viewer is unauthenticated.
func (v Viewer) Anonymous() bool { return v.Name == "" }

// Filter owns the decision and request caches and applies the permission
// policy to candidate image lists.
type Filter struct {
	oracle Oracle
	// decisions caches per-image block verdicts by absolute path.
	decisions *ttlCache[bool]
	// requests caches whole filtered results by (viewer, image-set
	// fingerprint). Short TTL because the catalog mutates underneath it.
	requests *ttlCache[[]string]
}

// NewFilter creates a Filter around the given oracle. A nil oracle behaves
// like NullOracle.
func NewFilter(oracle Oracle, cfg config.AccessConfig) *Filter {
	if oracle == nil {
		oracle = NullOracle{}
	}
	return &Filter{
		oracle:    oracle,
		decisions: newTTLCache[bool](cfg.DecisionTTL.D(), cfg.DecisionCapacity),
		requests:  newTTLCache[[]string](cfg.RequestTTL.D(), cfg.RequestCapacity),
	}
}

// Filter returns the subset of images the viewer may see, in input order.
func (f *Filter) Filter(ctx context.Context, viewer Viewer, root string, images []catalog.ImageRecord) []catalog.ImageRecord {
	if !f.oracle.Enabled() {
		return images
	}

	key := requestKey(viewer, images)
	if allowed, ok := f.requests.Get(key); ok {
		return subset(images, allowed)
	}

	result, err := f.apply(ctx, viewer, root, images)
	if err != nil {
		slog.Error("access filter failed", "viewer", viewer.Name, "error", err)
		if viewer.Anonymous() {
			return nil
		}
		return images
	}

	f.requests.Set(key, relPaths(result))
	return result
}

// Allowed reports whether the viewer may see a single image. Used by the
// image-serving path; shares the per-image decision cache with Filter.
func (f *Filter) Allowed(ctx context.Context, viewer Viewer, root, relPath string) bool {
	if !f.oracle.Enabled() {
		return true
	}
	if !f.enforced(ctx, viewer) {
		return true
	}

	abs, err := catalog.SafeJoin(root, relPath)
	if err != nil {
		return !viewer.Anonymous()
	}
	blocked, err := f.blocked(ctx, abs)
	if err != nil {
		// Anonymous fail closed, named fail open.
		return !viewer.Anonymous()
	}
	return !blocked
}

// InvalidateRequests drops all cached request results. Called when the
// catalog mutates so stale listings do not outlive the change.
func (f *Filter) InvalidateRequests() {
	f.requests.Purge()
}

func (f *Filter) apply(ctx context.Context, viewer Viewer, root string, images []catalog.ImageRecord) (result []catalog.ImageRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("filter panic: %v", r)
		}
	}()

	if !f.enforced(ctx, viewer) {
		return images, nil
	}

	result = make([]catalog.ImageRecord, 0, len(images))
	for _, img := range images {
		abs, joinErr := catalog.SafeJoin(root, img.RelPath)
		if joinErr != nil {
			if !viewer.Anonymous() {
				result = append(result, img)
			}
			continue
		}
		blocked, checkErr := f.blocked(ctx, abs)
		if checkErr != nil {
			// Per-image check error: anonymous viewers lose the image,
			// named viewers keep it.
			if !viewer.Anonymous() {
				result = append(result, img)
			}
			continue
		}
		if !blocked {
			result = append(result, img)
		}
	}
	return result, nil
}

// enforced resolves whether restriction applies to this viewer. Anonymous
// viewers are always enforced; an enforcement check error defaults to
// enforced.
func (f *Filter) enforced(ctx context.Context, viewer Viewer) bool {
	if viewer.Anonymous() {
		return true
	}
	enforced, err := f.oracle.Enforced(ctx, viewer.Name)
	if err != nil {
		slog.Warn("enforcement check failed, defaulting to enforced", "viewer", viewer.Name, "error", err)
		return true
	}
	return enforced
}

// blocked resolves the per-image verdict through the decision cache.
func (f *Filter) blocked(ctx context.Context, absPath string) (bool, error) {
	if v, ok := f.decisions.Get(absPath); ok {
		return v, nil
	}

	var (
		d   Decision
		err error
	)
	if fast, ok := f.oracle.(FastOracle); ok {
		d, err = fast.InspectFast(ctx, absPath)
	} else {
		d, err = f.oracle.Inspect(ctx, absPath)
	}
	if err != nil {
		return false, err
	}

	// Unknown means not classified yet: show it and let background
	// classification catch up.
	blocked := d == DecisionBlock
	f.decisions.Set(absPath, blocked)
	return blocked, nil
}

// requestKey fingerprints the candidate set: digest of the sorted relative
// paths, scoped by viewer.
func requestKey(viewer Viewer, images []catalog.ImageRecord) string {
	paths := relPaths(images)
	sort.Strings(paths)
	sum := sha256.Sum256([]byte(strings.Join(paths, "\n")))
	return viewer.Name + "\x00" + hex.EncodeToString(sum[:])
}

func relPaths(images []catalog.ImageRecord) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.RelPath
	}
	return out
}

func subset(images []catalog.ImageRecord, allowed []string) []catalog.ImageRecord {
	keep := make(map[string]struct{}, len(allowed))
	for _, p := range allowed {
		keep[p] = struct{}{}
	}
	out := make([]catalog.ImageRecord, 0, len(allowed))
	for _, img := range images {
		if _, ok := keep[img.RelPath]; ok {
			out = append(out, img)
		}
	}
	return out
}
