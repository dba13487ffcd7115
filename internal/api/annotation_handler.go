package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/streaming"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// DefaultHighlightColor is used when a highlight is created without a color
const DefaultHighlightColor = "yellow"

// AnnotationHandler serves bookmarks, highlights and reading progress
type AnnotationHandler struct {
	repo             book.Repository
	streamingService *streaming.Service
	logger           *zap.Logger
	now              func() time.Time
	newID            func() string
}

// NewAnnotationHandler creates a new annotation handler
func NewAnnotationHandler(repo book.Repository, logger *zap.Logger) *AnnotationHandler {
	return &AnnotationHandler{
		repo:             repo,
		streamingService: streaming.NewService(repo),
		logger:           logger.With(zap.String("handler", "annotations")),
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
	}
}

type bookmarkRequest struct {
	Location string  `json:"location"`
	Page     *int    `json:"page"`
	Title    *string `json:"title"`
	Note     *string `json:"note"`
}

type highlightRequest struct {
	CFIRange string  `json:"cfi_range"`
	Text     string  `json:"text"`
	Color    *string `json:"color"`
	Note     *string `json:"note"`
	Page     *int    `json:"page"`
}

type progressRequest struct {
	CurrentLocation    string   `json:"current_location"`
	CurrentPage        *int     `json:"current_page"`
	ProgressPercentage *float64 `json:"progress_percentage"`
}

// requireBook responds 404 and returns false when the book does not exist
func (h *AnnotationHandler) requireBook(w http.ResponseWriter, r *http.Request) (string, bool) {
	bookID := r.PathValue("id")
	if _, err := h.repo.GetBook(r.Context(), bookID); err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return "", false
	}
	return bookID, true
}

// ListBookmarks handles GET /api/v1/books/{id}/bookmarks
func (h *AnnotationHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.requireBook(w, r)
	if !ok {
		return
	}

	bookmarks, err := h.repo.ListBookmarks(r.Context(), bookID)
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, map[string]interface{}{
		"bookmarks": bookmarks,
		"count":     len(bookmarks),
	}, http.StatusOK)
}

// CreateBookmark handles POST /api/v1/books/{id}/bookmarks
func (h *AnnotationHandler) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.requireBook(w, r)
	if !ok {
		return
	}

	var req bookmarkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		respondError(w, "location is required", http.StatusBadRequest)
		return
	}
	if req.Page != nil && *req.Page < 0 {
		respondError(w, "page must not be negative", http.StatusBadRequest)
		return
	}

	now := h.now()
	bookmark := &types.Bookmark{
		ID:        h.newID(),
		BookID:    bookID,
		Location:  req.Location,
		Page:      req.Page,
		Title:     deref(req.Title),
		Note:      deref(req.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.SaveBookmark(r.Context(), bookmark); err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, bookmark, http.StatusCreated)
}

// UpdateBookmark handles PATCH /api/v1/books/{id}/bookmarks/{bid}; title and note are editable
func (h *AnnotationHandler) UpdateBookmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bookmark, err := h.repo.GetBookmark(ctx, r.PathValue("id"), r.PathValue("bid"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Bookmark not found")
		return
	}

	var req bookmarkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Location != "" || req.Page != nil {
		respondError(w, "only title and note can be changed", http.StatusBadRequest)
		return
	}

	if req.Title != nil {
		bookmark.Title = *req.Title
	}
	if req.Note != nil {
		bookmark.Note = *req.Note
	}
	bookmark.UpdatedAt = h.now()

	if err := h.repo.SaveBookmark(ctx, bookmark); err != nil {
		respondServiceError(w, h.logger, err, "Bookmark not found")
		return
	}

	respondJSON(w, bookmark, http.StatusOK)
}

// DeleteBookmark handles DELETE /api/v1/books/{id}/bookmarks/{bid}
func (h *AnnotationHandler) DeleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteBookmark(r.Context(), r.PathValue("id"), r.PathValue("bid")); err != nil {
		respondServiceError(w, h.logger, err, "Bookmark not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHighlights handles GET /api/v1/books/{id}/highlights
func (h *AnnotationHandler) ListHighlights(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.requireBook(w, r)
	if !ok {
		return
	}

	highlights, err := h.repo.ListHighlights(r.Context(), bookID)
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, map[string]interface{}{
		"highlights": highlights,
		"count":      len(highlights),
	}, http.StatusOK)
}

// CreateHighlight handles POST /api/v1/books/{id}/highlights
func (h *AnnotationHandler) CreateHighlight(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.requireBook(w, r)
	if !ok {
		return
	}

	var req highlightRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.CFIRange) == "" || strings.TrimSpace(req.Text) == "" {
		respondError(w, "cfi_range and text are required", http.StatusBadRequest)
		return
	}

	color := strings.TrimSpace(deref(req.Color))
	if color == "" {
		color = DefaultHighlightColor
	}

	now := h.now()
	highlight := &types.Highlight{
		ID:        h.newID(),
		BookID:    bookID,
		CFIRange:  req.CFIRange,
		Text:      req.Text,
		Color:     color,
		Note:      deref(req.Note),
		Page:      req.Page,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.SaveHighlight(r.Context(), highlight); err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, highlight, http.StatusCreated)
}

// UpdateHighlight handles PATCH /api/v1/books/{id}/highlights/{hid}; note and color are editable
func (h *AnnotationHandler) UpdateHighlight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	highlight, err := h.repo.GetHighlight(ctx, r.PathValue("id"), r.PathValue("hid"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Highlight not found")
		return
	}

	var req highlightRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CFIRange != "" || req.Text != "" || req.Page != nil {
		respondError(w, "only note and color can be changed", http.StatusBadRequest)
		return
	}

	if req.Color != nil {
		color := strings.TrimSpace(*req.Color)
		if color == "" {
			respondError(w, "color must not be empty", http.StatusBadRequest)
			return
		}
		highlight.Color = color
	}
	if req.Note != nil {
		highlight.Note = *req.Note
	}
	highlight.UpdatedAt = h.now()

	if err := h.repo.SaveHighlight(ctx, highlight); err != nil {
		respondServiceError(w, h.logger, err, "Highlight not found")
		return
	}

	respondJSON(w, highlight, http.StatusOK)
}

// DeleteHighlight handles DELETE /api/v1/books/{id}/highlights/{hid}
func (h *AnnotationHandler) DeleteHighlight(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteHighlight(r.Context(), r.PathValue("id"), r.PathValue("hid")); err != nil {
		respondServiceError(w, h.logger, err, "Highlight not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProgress handles GET /api/v1/books/{id}/progress
func (h *AnnotationHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.requireBook(w, r)
	if !ok {
		return
	}

	progress, err := h.repo.GetProgress(r.Context(), bookID)
	if err != nil {
		respondServiceError(w, h.logger, err, "No reading progress recorded")
		return
	}

	respondJSON(w, progress, http.StatusOK)
}

// SaveProgress handles PUT /api/v1/books/{id}/progress
func (h *AnnotationHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.requireBook(w, r)
	if !ok {
		return
	}

	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.CurrentLocation) == "" {
		respondError(w, "current_location is required", http.StatusBadRequest)
		return
	}
	percentage := 0.0
	if req.ProgressPercentage != nil {
		percentage = *req.ProgressPercentage
	}
	if percentage < 0 || percentage > 100 {
		respondError(w, "progress_percentage must be between 0 and 100", http.StatusBadRequest)
		return
	}

	now := h.now()
	progress := &types.ReadingProgress{
		BookID:             bookID,
		CurrentLocation:    req.CurrentLocation,
		CurrentPage:        req.CurrentPage,
		ProgressPercentage: percentage,
		LastReadAt:         now,
		UpdatedAt:          now,
	}
	if err := h.repo.SaveProgress(r.Context(), progress); err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, progress, http.StatusOK)
}

// StreamAnnotations handles GET /api/v1/books/{id}/annotations?after=ID
func (h *AnnotationHandler) StreamAnnotations(w http.ResponseWriter, r *http.Request) {
	items, err := h.streamingService.StreamAnnotations(r.Context(), r.PathValue("id"), r.URL.Query().Get("after"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if err := streaming.EncodeNDJSON(w, items); err != nil {
		h.logger.Warn("failed to write annotation stream", zap.Error(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
