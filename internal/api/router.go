package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/health"
	"github.com/ultrabooks/ultrabooks/internal/library"
	"github.com/ultrabooks/ultrabooks/internal/share"
)

// Info is reported by GET /api/v1/info
type Info struct {
	Version         string   `json:"version"`
	StorageAdapter  string   `json:"storage_adapter"`
	MaxFileSize     int64    `json:"max_file_size"`
	AcceptedFormats []string `json:"accepted_formats"`
}

// Dependencies wires the HTTP surface to the services behind it
type Dependencies struct {
	Repo    book.Repository
	Library *library.Service
	Shares  *share.Service // built from Repo when nil
	Health  *health.Handler
	Logger  *zap.Logger
	Info    Info
}

// NewRouter builds the HTTP handler serving the API and health endpoints
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	books := NewBookHandler(deps.Repo, deps.Library, logger)
	annotations := NewAnnotationHandler(deps.Repo, logger)
	settings := NewSettingsHandler(deps.Repo, logger)
	shareService := deps.Shares
	if shareService == nil {
		shareService = share.NewService(deps.Repo, share.Options{Logger: logger})
	}
	shares := NewShareHandler(shareService, books, logger)

	mux := http.NewServeMux()

	if deps.Health != nil {
		mux.HandleFunc("GET /health/live", deps.Health.LivenessHandler())
		mux.HandleFunc("GET /health/ready", deps.Health.ReadinessHandler())
		mux.HandleFunc("GET /health", deps.Health.HealthHandler())
	}

	mux.HandleFunc("GET /api/v1/info", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, deps.Info, http.StatusOK)
	})
	mux.HandleFunc("POST /api/v1/inspect", books.Inspect)

	mux.HandleFunc("POST /api/v1/books", books.UploadBook)
	mux.HandleFunc("GET /api/v1/books", books.ListBooks)
	mux.HandleFunc("GET /api/v1/books/{id}", books.GetBook)
	mux.HandleFunc("PATCH /api/v1/books/{id}", books.UpdateBook)
	mux.HandleFunc("DELETE /api/v1/books/{id}", books.DeleteBook)
	mux.HandleFunc("GET /api/v1/books/{id}/file", books.GetFile)
	mux.HandleFunc("GET /api/v1/books/{id}/cover", books.GetCover)
	mux.HandleFunc("GET /api/v1/books/{id}/thumbnail", books.GetThumbnail)
	mux.HandleFunc("GET /api/v1/books/{id}/export", books.ExportBook)

	mux.HandleFunc("GET /api/v1/books/{id}/bookmarks", annotations.ListBookmarks)
	mux.HandleFunc("POST /api/v1/books/{id}/bookmarks", annotations.CreateBookmark)
	mux.HandleFunc("PATCH /api/v1/books/{id}/bookmarks/{bid}", annotations.UpdateBookmark)
	mux.HandleFunc("DELETE /api/v1/books/{id}/bookmarks/{bid}", annotations.DeleteBookmark)
	mux.HandleFunc("GET /api/v1/books/{id}/highlights", annotations.ListHighlights)
	mux.HandleFunc("POST /api/v1/books/{id}/highlights", annotations.CreateHighlight)
	mux.HandleFunc("PATCH /api/v1/books/{id}/highlights/{hid}", annotations.UpdateHighlight)
	mux.HandleFunc("DELETE /api/v1/books/{id}/highlights/{hid}", annotations.DeleteHighlight)
	mux.HandleFunc("GET /api/v1/books/{id}/progress", annotations.GetProgress)
	mux.HandleFunc("PUT /api/v1/books/{id}/progress", annotations.SaveProgress)
	mux.HandleFunc("GET /api/v1/books/{id}/annotations", annotations.StreamAnnotations)

	mux.HandleFunc("GET /api/v1/books/{id}/shares", shares.ListShares)
	mux.HandleFunc("POST /api/v1/books/{id}/shares", shares.CreateShare)
	mux.HandleFunc("PATCH /api/v1/books/{id}/shares/{code}", shares.UpdateShare)
	mux.HandleFunc("DELETE /api/v1/books/{id}/shares/{code}", shares.DeleteShare)
	mux.HandleFunc("GET /api/v1/shared/{code}", shares.OpenShared)
	mux.HandleFunc("GET /api/v1/shared/{code}/export", shares.ExportShared)

	mux.HandleFunc("GET /api/v1/settings", settings.GetSettings)
	mux.HandleFunc("PUT /api/v1/settings", settings.UpdateSettings)

	return logRequests(logger, mux)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	logger = logger.With(zap.String("component", "http"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	})
}
