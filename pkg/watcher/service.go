// Package watcher translates raw filesystem events under the gallery root
// into typed created/deleted/modified notifications. A rename arrives as a
// deleted+created pair. Directory events, untracked extensions and the
// reserved thumbnail directory are discarded at the source.
package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gallerygo/pkg/catalog"
)

// EventKind classifies a change notification.
type EventKind int

const (
	// Created fires for a new file (or the destination of a rename).
	Created EventKind = iota
	// Deleted fires for a removed file (or the source of a rename).
	Deleted
	// Modified fires for a rewritten file.
	Modified
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	}
	return "unknown"
}

// Event is one change notification carrying the affected absolute path.
type Event struct {
	Kind EventKind
	Path string
}

// Service monitors the gallery root. Either an OS-level watch (fsnotify) or
// a periodic polling scan backs it; polling trades latency for compatibility
// with network mounts.
type Service struct {
	root         string
	pollInterval time.Duration
	onEvent      func(Event)

	mu      sync.Mutex
	exts    map[string]struct{}
	polling bool
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewService creates a stopped Service. onEvent is invoked from the watch
// goroutine; callbacks must be quick or hand off.
func NewService(root string, exts []string, pollInterval time.Duration, onEvent func(Event)) *Service {
	s := &Service{
		root:         root,
		pollInterval: pollInterval,
		onEvent:      onEvent,
	}
	s.setExtensions(exts)
	return s
}

// Start begins monitoring. Starting while already running is a no-op
// returning success. If the OS watch mechanism is unavailable the error is
// returned and the system operates without live updates.
func (s *Service) Start(polling bool) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.polling = polling
	root := s.root
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh = stopCh
	s.doneCh = doneCh
	s.mu.Unlock()

	if polling {
		snapshot := s.snapshot()
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		go s.pollLoop(stopCh, doneCh, snapshot)
		slog.Info("file monitoring started", "mode", "polling", "root", root)
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(fw, root); err != nil {
		fw.Close()
		return err
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	go s.notifyLoop(fw, stopCh, doneCh)
	slog.Info("file monitoring started", "mode", "fsnotify", "root", root)
	return nil
}

// Stop halts monitoring. Safe to call when already stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	slog.Info("file monitoring stopped")
}

// Running reports whether monitoring is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// UpdateExtensions replaces the tracked extension set without a restart.
func (s *Service) UpdateExtensions(exts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setExtensions(exts)
}

// UpdatePolling switches the watch mode. A no-op when the mode is unchanged;
// otherwise the service is stopped, reconfigured and restarted.
func (s *Service) UpdatePolling(polling bool) {
	s.mu.Lock()
	if s.polling == polling {
		s.mu.Unlock()
		return
	}
	wasRunning := s.running
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
	}
	s.mu.Lock()
	s.polling = polling
	s.mu.Unlock()
	if wasRunning {
		if err := s.Start(polling); err != nil {
			slog.Error("failed to restart file monitoring", "polling", polling, "error", err)
		}
	}
}

// UpdateRoot points monitoring at a new directory. A no-op when the root is
// unchanged; otherwise the service is stopped, rebound and restarted.
func (s *Service) UpdateRoot(root string) {
	s.mu.Lock()
	if s.root == root {
		s.mu.Unlock()
		return
	}
	wasRunning := s.running
	polling := s.polling
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
	if wasRunning {
		if err := s.Start(polling); err != nil {
			slog.Error("failed to restart file monitoring", "root", root, "error", err)
		}
	}
}

// Root returns the directory currently being monitored.
func (s *Service) Root() string {
	return s.currentRoot()
}

func (s *Service) currentRoot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

func (s *Service) setExtensions(exts []string) {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	s.exts = set
}

// relevant reports whether path has a tracked extension.
func (s *Service) relevant(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (s *Service) emit(kind EventKind, path string) {
	if !s.relevant(path) {
		return
	}
	if s.onEvent != nil {
		s.onEvent(Event{Kind: kind, Path: path})
	}
}

// notifyLoop consumes fsnotify events until stopped.
func (s *Service) notifyLoop(fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer fw.Close()

	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			s.handleFsEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

func (s *Service) handleFsEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New subdirectory: watch it, emit nothing.
			_ = addRecursive(fw, ev.Name)
			return
		}
		s.emit(Created, ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// The path is gone; the extension filter alone decides relevance.
		s.emit(Deleted, ev.Name)
	case ev.Op.Has(fsnotify.Write):
		s.emit(Modified, ev.Name)
	}
}

// pollLoop rescans the tree every pollInterval and diffs against the
// previous snapshot.
func (s *Service) pollLoop(stopCh, doneCh chan struct{}, prev map[string]time.Time) {
	defer close(doneCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			next := s.snapshot()
			for path, mtime := range next {
				old, ok := prev[path]
				if !ok {
					s.emit(Created, path)
				} else if mtime.After(old) {
					s.emit(Modified, path)
				}
			}
			for path := range prev {
				if _, ok := next[path]; !ok {
					s.emit(Deleted, path)
				}
			}
			prev = next
		}
	}
}

// snapshot maps every regular file under root to its mtime. Derived
// thumbnails live under the reserved directory and are never change events.
func (s *Service) snapshot() map[string]time.Time {
	out := make(map[string]time.Time)
	root := s.currentRoot()
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == catalog.ThumbsDirName {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = info.ModTime()
		return nil
	})
	return out
}

// addRecursive watches dir and every subdirectory beneath it except the
// reserved thumbnail directory. fsnotify watches are not recursive by
// themselves.
func addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == catalog.ThumbsDirName {
				return filepath.SkipDir
			}
			return fw.Add(path)
		}
		return nil
	})
}
