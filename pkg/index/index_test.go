package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Init(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestInitCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "index.db")
	d, err := Init(path)
	require.NoError(t, err)
	defer d.Close()
	assert.FileExists(t, path)
}

func TestUpsertAndSearch(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("a.png", "a lighthouse at dawn"))
	require.NoError(t, d.Upsert("sub/b.png", "city at night"))

	got, err := d.Search("lighthouse")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.png": true}, got)

	// Path text matches too.
	got, err = d.Search("sub/")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"sub/b.png": true}, got)
}

func TestUpsertUpdatesPrompt(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("a.png", "first"))
	require.NoError(t, d.Upsert("a.png", "second"))

	got, err := d.Search("second")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = d.Search("first")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemoveHidesAndUpsertRevives(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("a.png", "text"))
	require.NoError(t, d.Remove("a.png"))

	got, err := d.Search("text")
	require.NoError(t, err)
	assert.Empty(t, got, "soft-deleted rows are invisible")

	require.NoError(t, d.Upsert("a.png", "text"))
	got, err = d.Search("text")
	require.NoError(t, err)
	assert.Len(t, got, 1, "reappearing file revives the row")
}

func TestFavorites(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.SetFavorite("a.png", true))
	require.NoError(t, d.SetFavorite("b.png", true))
	require.NoError(t, d.SetFavorite("b.png", false))

	favs, err := d.Favorites()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.png": true}, favs)
}

func TestFavoriteSurvivesSoftDelete(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("a.png", "text"))
	require.NoError(t, d.SetFavorite("a.png", true))
	require.NoError(t, d.Remove("a.png"))

	favs, err := d.Favorites()
	require.NoError(t, err)
	assert.Empty(t, favs, "deleted rows are excluded from listings")

	require.NoError(t, d.Upsert("a.png", "text"))
	favs, err = d.Favorites()
	require.NoError(t, err)
	assert.True(t, favs["a.png"], "favorite flag survives the delete/revive cycle")
}

func TestPurge(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("a.png", ""))
	require.NoError(t, d.Upsert("b.png", ""))
	require.NoError(t, d.Remove("a.png"))

	n, err := d.Purge()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Purged rows are gone for good: re-upserting starts fresh.
	require.NoError(t, d.Upsert("a.png", "new"))
	got, err := d.Search("new")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRename(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("old.png", "text"))
	require.NoError(t, d.SetFavorite("old.png", true))
	require.NoError(t, d.Rename("old.png", "new.png"))

	favs, err := d.Favorites()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"new.png": true}, favs)
}

func TestSyncSoftDeletesMissing(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.Upsert("a.png", "alpha"))
	require.NoError(t, d.Upsert("b.png", "beta"))
	require.NoError(t, d.Upsert("c.png", "gamma"))

	require.NoError(t, d.Sync([]string{"a.png", "c.png"}))

	got, err := d.Search("beta")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = d.Search("alpha")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
