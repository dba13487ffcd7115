package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/library"
	"github.com/ultrabooks/ultrabooks/internal/packaging"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// multipartMemory is how much of a multipart upload is buffered in memory
const multipartMemory = 32 << 20

var fileContentTypes = map[string]string{
	types.FormatEPUB: "application/epub+zip",
	types.FormatPDF:  "application/pdf",
	types.FormatMOBI: "application/x-mobipocket-ebook",
}

// BookHandler handles book-related API endpoints
type BookHandler struct {
	repo             book.Repository
	library          *library.Service
	packagingService *packaging.Service
	logger           *zap.Logger
}

// NewBookHandler creates a new book handler
func NewBookHandler(repo book.Repository, lib *library.Service, logger *zap.Logger) *BookHandler {
	return &BookHandler{
		repo:             repo,
		library:          lib,
		packagingService: packaging.NewService(repo),
		logger:           logger.With(zap.String("handler", "books")),
	}
}

// UploadBook handles POST /api/v1/books
func (h *BookHandler) UploadBook(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	newBook, err := h.library.Upload(r.Context(), filename, data)
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, newBook, http.StatusCreated)
}

// Inspect handles POST /api/v1/inspect; nothing is stored
func (h *BookHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	inspection, err := h.library.Inspect(r.Context(), filename, data)
	if err != nil {
		respondServiceError(w, h.logger, err, "Not found")
		return
	}

	respondJSON(w, inspection, http.StatusOK)
}

// readUpload pulls the "file" part out of a multipart request, enforcing the size limit
func (h *BookHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	limit := h.library.MaxFileSize()
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, fmt.Sprintf("File exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
			return "", nil, false
		}
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No file provided", http.StatusBadRequest)
		return "", nil, false
	}
	defer file.Close()

	if _, err := h.library.Validate(header.Filename, header.Size); err != nil {
		respondServiceError(w, h.logger, err, "Not found")
		return "", nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respondError(w, "Failed to read file", http.StatusInternalServerError)
		return "", nil, false
	}
	return header.Filename, data, true
}

// ListBooks handles GET /api/v1/books; ?q= filters by title or author
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.library.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Not found")
		return
	}

	respondJSON(w, map[string]interface{}{
		"books": books,
		"count": len(books),
	}, http.StatusOK)
}

// GetBook handles GET /api/v1/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.repo.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, b, http.StatusOK)
}

// UpdateBook handles PATCH /api/v1/books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var patch types.BookPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.library.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	respondJSON(w, b, http.StatusOK)
}

// DeleteBook handles DELETE /api/v1/books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.library.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetFile handles GET /api/v1/books/{id}/file
func (h *BookHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.repo.GetBook(ctx, r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	reader, err := h.repo.GetRawFile(ctx, b.ID, b.FileType)
	if err != nil {
		respondServiceError(w, h.logger, err, "Book file not found")
		return
	}
	defer reader.Close()

	contentType, ok := fileContentTypes[b.FileType]
	if !ok {
		contentType = "application/octet-stream"
	}
	h.stream(w, reader, contentType, b.OriginalFilename, b.FileSize)
}

// GetCover handles GET /api/v1/books/{id}/cover
func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.repo.GetBook(ctx, r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}
	if b.CoverType == "" {
		respondError(w, "Book has no cover", http.StatusNotFound)
		return
	}

	reader, err := h.repo.GetCover(ctx, b.ID, b.CoverType)
	if err != nil {
		respondServiceError(w, h.logger, err, "Cover not found")
		return
	}
	defer reader.Close()

	h.stream(w, reader, b.CoverType, "", -1)
}

// GetThumbnail handles GET /api/v1/books/{id}/thumbnail
func (h *BookHandler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	reader, err := h.repo.GetThumbnail(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Thumbnail not found")
		return
	}
	defer reader.Close()

	h.stream(w, reader, "image/jpeg", "", -1)
}

// ExportBook handles GET /api/v1/books/{id}/export
func (h *BookHandler) ExportBook(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	includeFile, _ := strconv.ParseBool(r.URL.Query().Get("include_file"))

	zipReader, err := h.packagingService.PackageBook(r.Context(), bookID, packaging.Options{IncludeFile: includeFile})
	if err != nil {
		respondServiceError(w, h.logger, err, "Book not found")
		return
	}

	h.stream(w, zipReader, "application/zip", bookID+"-export.zip", -1)
}

// stream copies a stored object to the response. A non-empty filename
// marks it as an attachment; size < 0 means unknown.
func (h *BookHandler) stream(w http.ResponseWriter, reader io.Reader, contentType, filename string, size int64) {
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("failed to stream response", zap.Error(err))
	}
}
