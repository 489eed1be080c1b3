// Package metastore persists per-image user edits (rating, tags, title) and
// the ratings map as JSON documents with read-merge-write semantics.
//
// Writes go to a temp file in the same directory followed by an atomic
// rename, so a reader never observes a half-written document. Two concurrent
// writers can still race and one update can be lost; last-writer-wins is an
// accepted limitation of the single-user deployment.
package metastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	metaFileName    = "meta.json"
	ratingsFileName = "ratings.json"

	// RatingMax is the inclusive upper bound for ratings.
	RatingMax = 5
)

// Record is the free-form metadata stored for one image.
type Record map[string]any

// Store owns the metadata and ratings documents under a data directory.
// The mutex serialises writers within this process only.
type Store struct {
	mu          sync.Mutex
	metaPath    string
	ratingsPath string
}

// New creates a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{
		metaPath:    filepath.Join(dataDir, metaFileName),
		ratingsPath: filepath.Join(dataDir, ratingsFileName),
	}
}

// Get returns the stored record for key, possibly empty, never nil.
func (s *Store) Get(key string) Record {
	meta := loadDoc[Record](s.metaPath)
	if rec, ok := meta[key]; ok && rec != nil {
		return rec
	}
	return Record{}
}

// Set shallow-merges partial into the record for key, overwriting only the
// provided fields. A "rating" field is clamped to [0,RatingMax].
func (s *Store) Set(key string, partial Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := loadDoc[Record](s.metaPath)
	rec, ok := meta[key]
	if !ok || rec == nil {
		rec = Record{}
	}
	for k, v := range partial {
		if k == "rating" {
			v = clampRating(v)
		}
		rec[k] = v
	}
	meta[key] = rec
	return writeDoc(s.metaPath, meta)
}

// Ratings returns the full key → rating mapping.
func (s *Store) Ratings() map[string]int {
	return loadDoc[int](s.ratingsPath)
}

// SetRating stores a single rating, clamped to [0,RatingMax].
func (s *Store) SetRating(key string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rating < 0 {
		rating = 0
	}
	if rating > RatingMax {
		rating = RatingMax
	}
	ratings := loadDoc[int](s.ratingsPath)
	ratings[key] = rating
	return writeDoc(s.ratingsPath, ratings)
}

// RenameKey moves any metadata and rating stored under oldKey to newKey,
// leaving other entries untouched. Missing entries are not an error.
func (s *Store) RenameKey(oldKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := loadDoc[Record](s.metaPath)
	if rec, ok := meta[oldKey]; ok {
		delete(meta, oldKey)
		meta[newKey] = rec
		if err := writeDoc(s.metaPath, meta); err != nil {
			return err
		}
	}

	ratings := loadDoc[int](s.ratingsPath)
	if r, ok := ratings[oldKey]; ok {
		delete(ratings, oldKey)
		ratings[newKey] = r
		if err := writeDoc(s.ratingsPath, ratings); err != nil {
			return err
		}
	}
	return nil
}

// Prune drops entries whose key is not in valid, returning how many were
// removed across both documents.
func (s *Store) Prune(valid map[string]struct{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	meta := loadDoc[Record](s.metaPath)
	for k := range meta {
		if _, ok := valid[k]; !ok {
			delete(meta, k)
			removed++
		}
	}
	if err := writeDoc(s.metaPath, meta); err != nil {
		return removed, err
	}

	ratings := loadDoc[int](s.ratingsPath)
	for k := range ratings {
		if _, ok := valid[k]; !ok {
			delete(ratings, k)
			removed++
		}
	}
	if err := writeDoc(s.ratingsPath, ratings); err != nil {
		return removed, err
	}
	return removed, nil
}

// loadDoc reads a whole JSON document into memory. A missing, unreadable or
// corrupt document is treated as empty rather than an error.
func loadDoc[V any](path string) map[string]V {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]V{}
	}
	var doc map[string]V
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return map[string]V{}
	}
	return doc
}

// writeDoc rewrites the document fully: temp file in the same directory,
// then atomic rename over the target.
func writeDoc[V any](path string, doc map[string]V) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// clampRating coerces any JSON-decoded numeric value into [0,RatingMax].
func clampRating(v any) int {
	var r int
	switch n := v.(type) {
	case float64:
		r = int(n)
	case int:
		r = n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			r = int(f)
		}
	default:
		return 0
	}
	if r < 0 {
		return 0
	}
	if r > RatingMax {
		return RatingMax
	}
	return r
}
