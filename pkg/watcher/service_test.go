package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) record(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) waitFor(t *testing.T, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got := c.snapshot()
		if len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %v", want, c.snapshot())
	return nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func TestStartStopIdempotent(t *testing.T) {
	s := NewService(t.TempDir(), []string{".png"}, 20*time.Millisecond, nil)

	require.NoError(t, s.Start(true))
	assert.True(t, s.Running())
	require.NoError(t, s.Start(true), "second start is a no-op")

	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // stop when stopped is safe
}

func TestPollingDetectsChanges(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	s := NewService(root, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	path := filepath.Join(root, "new.png")
	writeFile(t, path)
	got := c.waitFor(t, 1)
	assert.Equal(t, Created, got[0].Kind)
	assert.Equal(t, path, got[0].Path)

	// Backdating then rewriting guarantees an mtime change the poller sees.
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Second)))
	got = c.waitFor(t, 2)
	assert.Equal(t, Modified, got[1].Kind)

	require.NoError(t, os.Remove(path))
	got = c.waitFor(t, 3)
	assert.Equal(t, Deleted, got[2].Kind)
}

func TestPollingIgnoresUntrackedExtensions(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	s := NewService(root, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, "img.png"))

	got := c.waitFor(t, 1)
	for _, ev := range got {
		assert.Equal(t, ".png", filepath.Ext(ev.Path))
	}
}

func TestPollingIgnoresThumbnailDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_thumbs"), 0o755))
	c := &collector{}
	s := NewService(root, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	// A generated thumbnail passes the extension filter but must not count
	// as a gallery change.
	writeFile(t, filepath.Join(root, "_thumbs", "abc123def4567890.png"))
	writeFile(t, filepath.Join(root, "real.png"))

	got := c.waitFor(t, 1)
	for _, ev := range got {
		assert.NotContains(t, ev.Path, "_thumbs")
	}
	assert.Equal(t, filepath.Join(root, "real.png"), got[0].Path)
}

func TestNotifyIgnoresThumbnailDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_thumbs"), 0o755))
	c := &collector{}
	s := NewService(root, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(false))
	defer s.Stop()

	writeFile(t, filepath.Join(root, "_thumbs", "abc123def4567890.png"))
	writeFile(t, filepath.Join(root, "real.png"))

	got := c.waitFor(t, 1)
	for _, ev := range got {
		assert.NotContains(t, ev.Path, "_thumbs")
	}
}

func TestUpdateExtensions(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	s := NewService(root, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	s.UpdateExtensions([]string{".jpg"})
	writeFile(t, filepath.Join(root, "a.jpg"))

	got := c.waitFor(t, 1)
	assert.Equal(t, Created, got[0].Kind)
	assert.Equal(t, ".jpg", filepath.Ext(got[0].Path))
}

func TestUpdatePollingNoOpWhenUnchanged(t *testing.T) {
	s := NewService(t.TempDir(), []string{".png"}, 20*time.Millisecond, nil)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	s.UpdatePolling(true)
	assert.True(t, s.Running(), "mode unchanged, service stays up")
}

func TestUpdatePollingRestarts(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	s := NewService(root, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(false))
	defer s.Stop()

	s.UpdatePolling(true)
	assert.True(t, s.Running())

	writeFile(t, filepath.Join(root, "after.png"))
	got := c.waitFor(t, 1)
	assert.Equal(t, Created, got[0].Kind)
}

func TestUpdateRootRebindsWatch(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	c := &collector{}
	s := NewService(oldRoot, []string{".png"}, 20*time.Millisecond, c.record)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	s.UpdateRoot(newRoot)
	assert.True(t, s.Running())
	assert.Equal(t, newRoot, s.Root())

	writeFile(t, filepath.Join(oldRoot, "stale.png"))
	writeFile(t, filepath.Join(newRoot, "fresh.png"))

	got := c.waitFor(t, 1)
	for _, ev := range got {
		assert.Equal(t, filepath.Join(newRoot, "fresh.png"), ev.Path,
			"events must come from the rebound root only")
	}
}

func TestUpdateRootNoOpWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	s := NewService(root, []string{".png"}, 20*time.Millisecond, nil)
	require.NoError(t, s.Start(true))
	defer s.Stop()

	s.UpdateRoot(root)
	assert.True(t, s.Running(), "root unchanged, service stays up")
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "modified", Modified.String())
}
