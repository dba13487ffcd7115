package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/share"
)

// ShareHandler serves share links of a book and the public shared views
type ShareHandler struct {
	shares *share.Service
	books  *BookHandler
	logger *zap.Logger
}

// NewShareHandler creates a new share handler
func NewShareHandler(shares *share.Service, books *BookHandler, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{
		shares: shares,
		books:  books,
		logger: logger.With(zap.String("handler", "shares")),
	}
}

type createShareRequest struct {
	IncludeBookmarks  bool `json:"include_bookmarks"`
	IncludeHighlights bool `json:"include_highlights"`
	IncludeNotes      bool `json:"include_notes"`
	ExpiresInHours    int  `json:"expires_in_hours"`
}

type updateShareRequest struct {
	IsActive *bool `json:"is_active"`
}

// ListShares handles GET /api/v1/books/{id}/shares
func (h *ShareHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.shares.List(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, map[string]interface{}{
		"shares": shares,
		"count":  len(shares),
	}, http.StatusOK)
}

// CreateShare handles POST /api/v1/books/{id}/shares. An empty body takes
// the defaults; an existing active share is returned with 200.
func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req createShareRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	created, reused, err := h.shares.Create(r.Context(), r.PathValue("id"), share.CreateRequest{
		IncludeBookmarks:  req.IncludeBookmarks,
		IncludeHighlights: req.IncludeHighlights,
		IncludeNotes:      req.IncludeNotes,
		ExpiresInHours:    req.ExpiresInHours,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	respondJSON(w, created, status)
}

// UpdateShare handles PATCH /api/v1/books/{id}/shares/{code}
func (h *ShareHandler) UpdateShare(w http.ResponseWriter, r *http.Request) {
	var req updateShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IsActive == nil {
		respondError(w, "is_active is required", http.StatusBadRequest)
		return
	}

	updated, err := h.shares.SetActive(r.Context(), r.PathValue("id"), r.PathValue("code"), *req.IsActive)
	if err != nil {
		respondServiceError(w, h.logger, err, "Share not found")
		return
	}

	respondJSON(w, updated, http.StatusOK)
}

// DeleteShare handles DELETE /api/v1/books/{id}/shares/{code}
func (h *ShareHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	if err := h.shares.Delete(r.Context(), r.PathValue("id"), r.PathValue("code")); err != nil {
		respondServiceError(w, h.logger, err, "Share not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// OpenShared handles GET /api/v1/shared/{code}
func (h *ShareHandler) OpenShared(w http.ResponseWriter, r *http.Request) {
	shared, err := h.shares.Open(r.Context(), r.PathValue("code"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Share not found or expired")
		return
	}

	respondJSON(w, shared, http.StatusOK)
}

// ExportShared handles GET /api/v1/shared/{code}/export
func (h *ShareHandler) ExportShared(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	zipReader, err := h.shares.Export(r.Context(), code)
	if err != nil {
		respondServiceError(w, h.logger, err, "Share not found or expired")
		return
	}

	h.books.stream(w, zipReader, "application/zip", "shared-"+code+".zip", -1)
}
