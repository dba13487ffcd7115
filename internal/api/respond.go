package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/library"
	"github.com/ultrabooks/ultrabooks/internal/share"
)

// maxJSONBody bounds request bodies of the JSON endpoints
const maxJSONBody = 1 << 20

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP statuses and logs the rest
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, notFound string) {
	switch {
	case errors.Is(err, book.ErrNotFound):
		respondError(w, notFound, http.StatusNotFound)
	case errors.Is(err, library.ErrFileTooLarge):
		respondError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, library.ErrUnsupportedFormat),
		errors.Is(err, library.ErrEmptyFile),
		errors.Is(err, library.ErrInvalidPatch),
		errors.Is(err, share.ErrInvalidExpiry):
		respondError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
