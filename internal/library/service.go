package library

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/parser"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for files that are not epub, pdf or mobi
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrFileTooLarge is returned when an upload exceeds the size limit
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-byte uploads
	ErrEmptyFile = errors.New("file is empty")
	// ErrInvalidPatch is returned when an update would blank the title
	ErrInvalidPatch = errors.New("invalid book update")
)

// DefaultMaxFileSize is the upload limit when none is configured
const DefaultMaxFileSize int64 = 100 << 20

// Thumbnails schedules thumbnail generation for a stored cover
type Thumbnails interface {
	Enqueue(bookID, coverType string) error
}

// Options configures a Service
type Options struct {
	MaxFileSize     int64
	AcceptedFormats []string
	Thumbnails      Thumbnails // nil disables thumbnails
	Logger          *zap.Logger
	Now             func() time.Time
	NewID           func() string
}

// Service turns uploaded files into library books
type Service struct {
	repo       book.Repository
	parsers    parser.Factory
	thumbnails Thumbnails
	maxSize    int64
	accepted   []string
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewService creates an upload service
func NewService(repo book.Repository, parsers parser.Factory, opts Options) *Service {
	s := &Service{
		repo:       repo,
		parsers:    parsers,
		thumbnails: opts.Thumbnails,
		maxSize:    opts.MaxFileSize,
		accepted:   opts.AcceptedFormats,
		logger:     opts.Logger,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxFileSize
	}
	if len(s.accepted) == 0 {
		s.accepted = []string{types.FormatEPUB, types.FormatPDF, types.FormatMOBI}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "library"))
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// MaxFileSize returns the upload size limit in bytes
func (s *Service) MaxFileSize() int64 {
	return s.maxSize
}

// DetectFormat maps a filename onto an accepted book format
func (s *Service) DetectFormat(filename string) (string, error) {
	format := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if format == "" || !slices.Contains(s.accepted, format) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	return format, nil
}

// Validate checks an upload's format and size without storing anything
func (s *Service) Validate(filename string, size int64) (string, error) {
	format, err := s.DetectFormat(filename)
	if err != nil {
		return "", err
	}
	if size > s.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, s.maxSize)
	}
	if size == 0 {
		return "", ErrEmptyFile
	}
	return format, nil
}

// Inspect reads title, author and cover from a file without storing it
func (s *Service) Inspect(ctx context.Context, filename string, data []byte) (*types.Inspection, error) {
	format, err := s.Validate(filename, int64(len(data)))
	if err != nil {
		return nil, err
	}
	p, err := s.parsers.GetParser(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return p.Inspect(ctx, data)
}

// Upload stores a new book with whatever metadata and cover the file carries
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*types.Book, error) {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))

	inspection, err := s.Inspect(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	format, _ := s.DetectFormat(filename)

	now := s.now()
	b := &types.Book{
		ID:               s.newID(),
		Title:            inspection.Title,
		Author:           inspection.Author,
		FileType:         format,
		FileSize:         int64(len(data)),
		OriginalFilename: filename,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if b.Title == "" {
		b.Title = TitleFromFilename(filename)
	}
	b.FileURL = FileURL(b.ID)

	if err := s.repo.SaveRawFile(ctx, b.ID, data, format); err != nil {
		return nil, err
	}

	coverStored := false
	if cover := inspection.Cover; cover != nil {
		if err := s.repo.SaveCover(ctx, b.ID, cover.Data, cover.MIMEType); err != nil {
			// the book is still readable without its cover
			s.logger.Warn("failed to store cover",
				zap.String("book_id", b.ID),
				zap.Error(err),
			)
		} else {
			b.CoverURL = CoverURL(b.ID)
			b.CoverType = cover.MIMEType
			coverStored = true
		}
	}

	if err := s.repo.SaveBook(ctx, b); err != nil {
		if cleanupErr := s.repo.DeleteBook(ctx, b.ID); cleanupErr != nil {
			s.logger.Warn("failed to remove files of unsaved book",
				zap.String("book_id", b.ID),
				zap.Error(cleanupErr),
			)
		}
		return nil, err
	}

	if coverStored && s.thumbnails != nil {
		if err := s.thumbnails.Enqueue(b.ID, b.CoverType); err != nil {
			s.logger.Warn("thumbnail not scheduled",
				zap.String("book_id", b.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("book uploaded",
		zap.String("book_id", b.ID),
		zap.String("format", format),
		zap.Int64("size", b.FileSize),
		zap.Bool("cover", coverStored),
	)
	return b, nil
}

// Update applies user edits to a book's title and author
func (s *Service) Update(ctx context.Context, bookID string, patch types.BookPatch) (*types.Book, error) {
	var title, author string
	if patch.Title != nil {
		title = strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidPatch)
		}
	}
	if patch.Author != nil {
		author = strings.TrimSpace(*patch.Author)
	}

	return s.repo.ModifyBook(ctx, bookID, func(b *types.Book) error {
		if patch.Title != nil {
			b.Title = title
		}
		if patch.Author != nil {
			b.Author = author
		}
		b.UpdatedAt = s.now()
		return nil
	})
}

// Search lists the books whose title or author contains query, ignoring
// case. A blank query returns every book.
func (s *Service) Search(ctx context.Context, query string) ([]*types.Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	return FilterBooks(books, query), nil
}

// FilterBooks keeps the books whose title or author contains query, ignoring case
func FilterBooks(books []*types.Book, query string) []*types.Book {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return books
	}
	return slices.DeleteFunc(books, func(b *types.Book) bool {
		return !strings.Contains(strings.ToLower(b.Title), query) &&
			!strings.Contains(strings.ToLower(b.Author), query)
	})
}

// Delete removes a book together with its files and annotations
func (s *Service) Delete(ctx context.Context, bookID string) error {
	if err := s.repo.DeleteBook(ctx, bookID); err != nil {
		return err
	}
	s.logger.Info("book deleted", zap.String("book_id", bookID))
	return nil
}

// TitleFromFilename strips a trailing .epub, .pdf or .mobi extension
func TitleFromFilename(filename string) string {
	ext := path.Ext(filename)
	switch strings.ToLower(ext) {
	case ".epub", ".pdf", ".mobi":
		return strings.TrimSuffix(filename, ext)
	}
	return filename
}

// FileURL is the API path serving a book's raw file
func FileURL(bookID string) string {
	return "/api/v1/books/" + bookID + "/file"
}

// CoverURL is the API path serving a book's cover
func CoverURL(bookID string) string {
	return "/api/v1/books/" + bookID + "/cover"
}
