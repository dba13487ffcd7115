package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// Annotation kinds
const (
	KindBookmark  = "bookmark"
	KindHighlight = "highlight"
)

// Service merges a book's annotations into a single feed
type Service struct {
	bookRepo book.Repository
}

// NewService creates a new streaming service
func NewService(bookRepo book.Repository) *Service {
	return &Service{
		bookRepo: bookRepo,
	}
}

// StreamItem is one line of the annotation feed
type StreamItem struct {
	Kind      string           `json:"type"`
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Bookmark  *types.Bookmark  `json:"bookmark,omitempty"`
	Highlight *types.Highlight `json:"highlight,omitempty"`
}

// StreamAnnotations returns bookmarks and highlights oldest first. When
// afterID is set, only items following that annotation are returned; an
// unknown afterID yields no items.
func (s *Service) StreamAnnotations(ctx context.Context, bookID, afterID string) ([]StreamItem, error) {
	if _, err := s.bookRepo.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	bookmarks, err := s.bookRepo.ListBookmarks(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	highlights, err := s.bookRepo.ListHighlights(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}

	items := make([]StreamItem, 0, len(bookmarks)+len(highlights))
	for _, bm := range bookmarks {
		items = append(items, StreamItem{Kind: KindBookmark, ID: bm.ID, CreatedAt: bm.CreatedAt, Bookmark: bm})
	}
	for _, hl := range highlights {
		items = append(items, StreamItem{Kind: KindHighlight, ID: hl.ID, CreatedAt: hl.CreatedAt, Highlight: hl})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	if afterID == "" {
		return items, nil
	}
	for i, item := range items {
		if item.ID == afterID {
			return items[i+1:], nil
		}
	}
	return []StreamItem{}, nil
}

// EncodeNDJSON writes one JSON object per line
func EncodeNDJSON(w io.Writer, items []StreamItem) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to encode item %s: %w", item.ID, err)
		}
	}
	return nil
}
