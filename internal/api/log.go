package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"gallerygo/pkg/logging"
)

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog logs every request to the request log with a unique id,
// method, path, status and duration.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("request",
				"id", uuid.NewString(),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	})
}

// LogHandler ingests frontend log lines into the server log.
type LogHandler struct{}

// NewLogHandler creates a LogHandler.
func NewLogHandler() *LogHandler { return &LogHandler{} }

type logRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// HandleLog accepts a frontend log line and writes it to the server log.
func (h *LogHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}
	logging.LogFrontend(req.Level, req.Message)
	writeOK(w, nil)
}
