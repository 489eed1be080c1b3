// Package index maintains the sqlite catalog index: searchable prompt text,
// favorites and soft-delete state keyed by relative path.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS images (
			relpath TEXT PRIMARY KEY,
			prompt TEXT,
			favorite BOOLEAN DEFAULT 0,
			deleted BOOLEAN DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_images_deleted ON images(deleted);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	return nil
}

// Upsert records an image and its searchable prompt text, reviving a
// soft-deleted row if the file reappeared.
func (d *DB) Upsert(relPath, prompt string) error {
	_, err := d.Exec(`INSERT INTO images (relpath, prompt, deleted, updated_at)
		VALUES (?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(relpath) DO UPDATE SET
			prompt = excluded.prompt,
			deleted = 0,
			updated_at = CURRENT_TIMESTAMP`, relPath, prompt)
	return err
}

// Remove soft-deletes an image. The row survives until Purge so favorites
// and prompt text outlive a transient disappearance.
func (d *DB) Remove(relPath string) error {
	_, err := d.Exec("UPDATE images SET deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE relpath = ?", relPath)
	return err
}

// Rename moves a row to its new relative path.
func (d *DB) Rename(oldPath, newPath string) error {
	_, err := d.Exec("UPDATE images SET relpath = ?, updated_at = CURRENT_TIMESTAMP WHERE relpath = ?", newPath, oldPath)
	return err
}

// Purge drops all soft-deleted rows and returns how many were removed.
func (d *DB) Purge() (int64, error) {
	res, err := d.Exec("DELETE FROM images WHERE deleted = 1")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetFavorite flags or unflags an image, creating the row if needed.
func (d *DB) SetFavorite(relPath string, favorite bool) error {
	_, err := d.Exec(`INSERT INTO images (relpath, favorite, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(relpath) DO UPDATE SET
			favorite = excluded.favorite,
			updated_at = CURRENT_TIMESTAMP`, relPath, favorite)
	return err
}

// Favorites returns the set of favorited, non-deleted relative paths.
func (d *DB) Favorites() (map[string]bool, error) {
	rows, err := d.Query("SELECT relpath FROM images WHERE favorite = 1 AND deleted = 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var relPath string
		if err := rows.Scan(&relPath); err != nil {
			return nil, err
		}
		out[relPath] = true
	}
	return out, rows.Err()
}

// Search returns the relative paths whose prompt text or path matches the
// term, case-insensitively.
func (d *DB) Search(term string) (map[string]bool, error) {
	pattern := "%" + term + "%"
	rows, err := d.Query(`SELECT relpath FROM images
		WHERE deleted = 0 AND (prompt LIKE ? OR relpath LIKE ?)`, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var relPath string
		if err := rows.Scan(&relPath); err != nil {
			return nil, err
		}
		out[relPath] = true
	}
	return out, rows.Err()
}

// Sync reconciles the index against a full scan: rows for paths no longer
// present are soft-deleted in one transaction.
func (d *DB) Sync(present []string) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("CREATE TEMP TABLE IF NOT EXISTS scan_paths (relpath TEXT PRIMARY KEY)"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM scan_paths"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO scan_paths (relpath) VALUES (?)")
	if err != nil {
		return err
	}
	for _, p := range present {
		if _, err := stmt.Exec(p); err != nil {
			stmt.Close()
			return err
		}
	}
	stmt.Close()

	if _, err := tx.Exec(`UPDATE images SET deleted = 1, updated_at = CURRENT_TIMESTAMP
		WHERE deleted = 0 AND relpath NOT IN (SELECT relpath FROM scan_paths)`); err != nil {
		return err
	}
	return tx.Commit()
}
