package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gallerygo/internal/api"
	"gallerygo/pkg/access"
	"gallerygo/pkg/catalog"
	"gallerygo/pkg/config"
	"gallerygo/pkg/index"
	"gallerygo/pkg/logging"
	"gallerygo/pkg/metastore"
	"gallerygo/pkg/pngmeta"
	"gallerygo/pkg/thumbs"
	"gallerygo/pkg/watcher"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// .env is optional; environment overrides are applied during config load.
	_ = godotenv.Load()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/gallery.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/gallery.yaml")
		return
	}

	if err := run(context.Background(), "configs/gallery.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("GalleryGo started", "root", cfg.Gallery.Root, "addr", cfg.Server.Addr)

	idx, err := index.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize index: %w", err)
	}
	defer idx.Close()

	meta := metastore.New(cfg.Gallery.DataDir)
	settings := config.LoadSettings(filepath.Join(cfg.Gallery.DataDir, "settings.json"), config.Settings{
		Extensions: cfg.Gallery.Extensions,
	})

	rootFn := func() string {
		if cr := settings.Get().CustomRoot; cr != "" {
			return cr
		}
		return cfg.Gallery.Root
	}
	extsFn := func() []string { return settings.Get().Extensions }

	if err := os.MkdirAll(rootFn(), 0o755); err != nil {
		return fmt.Errorf("failed to create gallery root: %w", err)
	}

	scanner := catalog.NewScanner()
	cache := thumbs.New(cfg.Thumbs.MaxEdge)

	// The oracle stays the null implementation unless a real classifier is
	// wired in at build time.
	filter := access.NewFilter(access.NullOracle{}, cfg.Access)

	monitor := watcher.NewService(rootFn(), extsFn(), cfg.Watch.PollInterval.D(), func(ev watcher.Event) {
		handleChange(idx, filter, rootFn(), ev)
	})
	if err := monitor.Start(settings.Get().Polling); err != nil {
		slog.Warn("file monitoring unavailable, live updates disabled", "error", err)
	} else {
		defer monitor.Stop()
	}

	// Initial scan runs in the background so the server is reachable
	// immediately.
	go initialScan(scanner, idx, meta, cache, rootFn(), extsFn())

	srv := api.NewServer(cfg.Server,
		api.NewGalleryHandler(rootFn, extsFn, cfg.Gallery.ListLimit, scanner, filter, meta, idx),
		api.NewImageHandler(rootFn, filter, cache),
		api.NewRatingsHandler(rootFn, meta),
		api.NewMetaHandler(rootFn, meta),
		api.NewFilesHandler(rootFn, meta, idx, filter),
		api.NewSettingsHandler(settings, monitor, rootFn),
		api.NewWatchHandler(monitor),
		api.NewLogHandler(),
	)

	return runServerLifecycle(ctx, srv)
}

// handleChange feeds one filesystem event into the index and drops cached
// listings so the change is visible on the next request.
func handleChange(idx *index.DB, filter *access.Filter, root string, ev watcher.Event) {
	rel, err := filepath.Rel(root, ev.Path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	// A stale event from a just-replaced root relativises outside the tree.
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return
	}

	switch ev.Kind {
	case watcher.Created, watcher.Modified:
		if err := idx.Upsert(rel, promptTextFor(ev.Path)); err != nil {
			slog.Warn("index upsert failed", "file", rel, "error", err)
		}
	case watcher.Deleted:
		if err := idx.Remove(rel); err != nil {
			slog.Warn("index remove failed", "file", rel, "error", err)
		}
	}
	slog.Debug("catalog change", "kind", ev.Kind.String(), "file", rel)
	filter.InvalidateRequests()
}

// promptTextFor extracts searchable prompt text from an image, empty on any
// failure.
func promptTextFor(absPath string) string {
	meta, err := pngmeta.Extract(absPath)
	if err != nil {
		return ""
	}
	return pngmeta.PromptText(meta)
}

// initialScan reconciles the index with the filesystem, prunes orphaned
// metadata and pre-generates thumbnails.
func initialScan(scanner *catalog.Scanner, idx *index.DB, meta *metastore.Store, cache *thumbs.Cache, root string, exts []string) {
	start := time.Now()
	records := scanner.Scan(root, exts, 0)

	present := make([]string, 0, len(records))
	valid := make(map[string]struct{}, len(records))
	for _, rec := range records {
		present = append(present, rec.RelPath)
		valid[rec.RelPath] = struct{}{}
		abs, err := catalog.SafeJoin(root, rec.RelPath)
		if err != nil {
			continue
		}
		if err := idx.Upsert(rec.RelPath, promptTextFor(abs)); err != nil {
			slog.Warn("index upsert failed", "file", rec.RelPath, "error", err)
		}
	}
	if err := idx.Sync(present); err != nil {
		slog.Warn("index sync failed", "error", err)
	}
	if removed, err := meta.Prune(valid); err != nil {
		slog.Warn("metadata prune failed", "error", err)
	} else if removed > 0 {
		slog.Info("pruned orphaned metadata entries", "count", removed)
	}

	cache.Warm(root, records)
	slog.Info("initial scan complete", "images", len(records), "duration", time.Since(start))
}

func runServerLifecycle(ctx context.Context, srv *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
