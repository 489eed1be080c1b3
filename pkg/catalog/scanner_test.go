package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, mtime time.Time) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(full, mtime, mtime))
}

func TestScan(t *testing.T) {
	root := t.TempDir()

	jan := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	writeFile(t, root, "a.png", jan)
	writeFile(t, root, "b.jpg", feb)
	writeFile(t, root, "_thumbs/b.jpg", feb) // decoy, reserved dir
	writeFile(t, root, "notes.txt", feb)     // extension not tracked

	s := NewScanner()
	got := s.Scan(root, []string{".png", ".jpg"}, 0)

	require.Len(t, got, 2)
	assert.Equal(t, "b.jpg", got[0].RelPath, "newest first")
	assert.Equal(t, "a.png", got[1].RelPath)
	assert.Equal(t, "", got[0].Folder)
}

func TestScanNestedFolders(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeFile(t, root, "sub/folder/img.png", now.Add(-time.Hour))
	writeFile(t, root, "img.png", now)

	got := NewScanner().Scan(root, []string{".png"}, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "img.png", got[0].RelPath)
	assert.Equal(t, "sub/folder/img.png", got[1].RelPath)
	assert.Equal(t, "sub/folder", got[1].Folder)
	assert.Equal(t, "img.png", got[1].Name)
}

func TestScanLimit(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeFile(t, root, "one.png", base)
	writeFile(t, root, "two.png", base.Add(time.Minute))
	writeFile(t, root, "three.png", base.Add(2*time.Minute))

	got := NewScanner().Scan(root, []string{".png"}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "three.png", got[0].RelPath)
	assert.Equal(t, "two.png", got[1].RelPath)
}

func TestScanMissingRoot(t *testing.T) {
	got := NewScanner().Scan(filepath.Join(t.TempDir(), "nope"), []string{".png"}, 0)
	assert.Empty(t, got)
}

func TestScanCaseInsensitiveExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "SHOUTY.PNG", time.Now())

	got := NewScanner().Scan(root, []string{".png"}, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "SHOUTY.PNG", got[0].Name)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"plain", "a.png", false},
		{"nested", "sub/a.png", false},
		{"dotdot", "../escape.png", true},
		{"sneaky", "sub/../../escape.png", true},
		{"root itself", ".", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoin(root, tt.rel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, got, root)
		})
	}
}

func TestFolderOf(t *testing.T) {
	assert.Equal(t, "", FolderOf("a.png"))
	assert.Equal(t, "sub", FolderOf("sub/a.png"))
	assert.Equal(t, "sub/deep", FolderOf("sub/deep/a.png"))
}
