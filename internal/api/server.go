package api

import (
	"log/slog"
	"net/http"
	"time"

	"gallerygo/pkg/config"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints.
func NewServer(cfg config.ServerConfig, gallery *GalleryHandler, images *ImageHandler, ratings *RatingsHandler, meta *MetaHandler, files *FilesHandler, settings *SettingsHandler, watch *WatchHandler, logH *LogHandler) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Listing and index-backed operations
	mux.HandleFunc("GET /list", gallery.HandleList)
	mux.HandleFunc("POST /favorite", gallery.HandleFavorite)
	mux.HandleFunc("POST /purge", gallery.HandlePurge)

	// 3. Image serving
	mux.HandleFunc("GET /image", images.HandleGetImage)

	// 4. Ratings
	mux.HandleFunc("POST /rating", ratings.HandleSetRating)
	mux.HandleFunc("GET /ratings", ratings.HandleGetRatings)

	// 5. Metadata
	mux.HandleFunc("GET /meta", meta.HandleGetMeta)
	mux.HandleFunc("POST /meta", meta.HandleSetMeta)

	// 6. Batch operations
	mux.HandleFunc("POST /batch/delete", files.HandleBatchDelete)
	mux.HandleFunc("GET /batch/download", files.HandleBatchDownload)

	// 7. Filesystem mutations
	mux.HandleFunc("POST /rename", files.HandleRename)
	mux.HandleFunc("POST /rename-folder", files.HandleRenameFolder)
	mux.HandleFunc("POST /move-file", files.HandleMoveFile)
	mux.HandleFunc("POST /move-folder", files.HandleMoveFolder)
	mux.HandleFunc("POST /create-folder", files.HandleCreateFolder)
	mux.HandleFunc("POST /delete-folder", files.HandleDeleteFolder)
	mux.HandleFunc("POST /delete-file", files.HandleDeleteFile)

	// 8. Settings and monitoring status
	mux.HandleFunc("GET /settings", settings.HandleGet)
	mux.HandleFunc("POST /settings", settings.HandleSet)
	mux.HandleFunc("GET /watch", watch.HandleStatus)

	// 9. Frontend log ingestion
	mux.HandleFunc("POST /log", logH.HandleLog)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      withRequestLog(mux),
		ReadTimeout:  orDefault(cfg.ReadTimeout.D(), 15*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout.D(), 60*time.Second),
		IdleTimeout:  orDefault(cfg.IdleTimeout.D(), 60*time.Second),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}
