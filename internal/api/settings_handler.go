package api

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

var (
	validThemes     = []string{"light", "dark", "sepia"}
	validTextAligns = []string{"left", "justify"}
)

// SettingsHandler serves the reader settings document
type SettingsHandler struct {
	repo   book.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(repo book.Repository, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		repo:   repo,
		logger: logger.With(zap.String("handler", "settings")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetSettings handles GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "Settings not found")
		return
	}
	respondJSON(w, settings, http.StatusOK)
}

// UpdateSettings handles PUT /api/v1/settings. Fields missing from the
// body keep their current values.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.repo.GetSettings(ctx)
	if err != nil {
		respondServiceError(w, h.logger, err, "Settings not found")
		return
	}

	if err := decodeJSON(w, r, settings); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateSettings(settings); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	settings.UpdatedAt = h.now()

	if err := h.repo.SaveSettings(ctx, settings); err != nil {
		respondServiceError(w, h.logger, err, "Settings not found")
		return
	}
	respondJSON(w, settings, http.StatusOK)
}

func validateSettings(s *types.ReaderSettings) error {
	if !slices.Contains(validThemes, s.Theme) {
		return fmt.Errorf("theme must be one of %v", validThemes)
	}
	if !slices.Contains(validTextAligns, s.TextAlign) {
		return fmt.Errorf("text_align must be one of %v", validTextAligns)
	}
	if s.FontFamily == "" {
		return fmt.Errorf("font_family must not be empty")
	}
	if s.FontSize < 8 || s.FontSize > 72 {
		return fmt.Errorf("font_size must be between 8 and 72")
	}
	if s.LineHeight < 1 || s.LineHeight > 3 {
		return fmt.Errorf("line_height must be between 1 and 3")
	}
	if s.Margins < 0 || s.Margins > 200 {
		return fmt.Errorf("margins must be between 0 and 200")
	}
	return nil
}
