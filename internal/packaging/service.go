package packaging

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/util"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// FormatVersion identifies the export layout
const FormatVersion = "1.0"

// Service packages a book and its annotations into a ZIP archive
type Service struct {
	bookRepo book.Repository
	now      func() time.Time
}

// NewService creates a new packaging service
func NewService(bookRepo book.Repository) *Service {
	return &Service{
		bookRepo: bookRepo,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Options selects optional archive contents
type Options struct {
	IncludeFile bool // add the uploaded book file as book.<format>

	// Shared exports leave out what the owner did not choose to share
	OmitBookmarks  bool
	OmitHighlights bool
	OmitNotes      bool // clear the note of every bookmark and highlight
	OmitProgress   bool
}

// Manifest is the top-level description of an export
type Manifest struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Book       *types.Book `json:"book"`
	Bookmarks  int         `json:"bookmarks"`
	Highlights int         `json:"highlights"`
	Files      []string    `json:"files"`
}

// PackageBook creates a ZIP archive for a book
func (s *Service) PackageBook(ctx context.Context, bookID string, opts Options) (io.Reader, error) {
	b, err := s.bookRepo.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	var bookmarks []*types.Bookmark
	if !opts.OmitBookmarks {
		if bookmarks, err = s.bookRepo.ListBookmarks(ctx, bookID); err != nil {
			return nil, fmt.Errorf("failed to list bookmarks: %w", err)
		}
	}
	var highlights []*types.Highlight
	if !opts.OmitHighlights {
		if highlights, err = s.bookRepo.ListHighlights(ctx, bookID); err != nil {
			return nil, fmt.Errorf("failed to list highlights: %w", err)
		}
	}
	if opts.OmitNotes {
		StripNotes(bookmarks, highlights)
	}
	var progress *types.ReadingProgress
	if !opts.OmitProgress {
		progress, err = s.bookRepo.GetProgress(ctx, bookID)
		if err != nil && !errors.Is(err, book.ErrNotFound) {
			return nil, fmt.Errorf("failed to get progress: %w", err)
		}
	}

	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)
	files := make([]string, 0, 6)

	if !opts.OmitBookmarks {
		if err := s.addJSONFile(zipWriter, "bookmarks.json", bookmarks); err != nil {
			return nil, fmt.Errorf("failed to add bookmarks: %w", err)
		}
		files = append(files, "bookmarks.json")
	}
	if !opts.OmitHighlights {
		if err := s.addJSONFile(zipWriter, "highlights.json", highlights); err != nil {
			return nil, fmt.Errorf("failed to add highlights: %w", err)
		}
		files = append(files, "highlights.json")
	}
	if progress != nil {
		if err := s.addJSONFile(zipWriter, "progress.json", progress); err != nil {
			return nil, fmt.Errorf("failed to add progress: %w", err)
		}
		files = append(files, "progress.json")
	}

	if b.CoverType != "" {
		name := "cover." + util.CoverExtension(b.CoverType)
		added, err := s.addStoredFile(zipWriter, name, func() (io.ReadCloser, error) {
			return s.bookRepo.GetCover(ctx, bookID, b.CoverType)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add cover: %w", err)
		}
		if added {
			files = append(files, name)
		}
	}

	if opts.IncludeFile {
		name := "book." + b.FileType
		added, err := s.addStoredFile(zipWriter, name, func() (io.ReadCloser, error) {
			return s.bookRepo.GetRawFile(ctx, bookID, b.FileType)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add book file: %w", err)
		}
		if added {
			files = append(files, name)
		}
	}

	manifest := &Manifest{
		Version:    FormatVersion,
		ExportedAt: s.now(),
		Book:       b,
		Bookmarks:  len(bookmarks),
		Highlights: len(highlights),
		Files:      files,
	}
	if err := s.addJSONFile(zipWriter, "manifest.json", manifest); err != nil {
		return nil, fmt.Errorf("failed to add manifest: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// StripNotes clears the personal notes of bookmarks and highlights in place
func StripNotes(bookmarks []*types.Bookmark, highlights []*types.Highlight) {
	for _, b := range bookmarks {
		b.Note = ""
	}
	for _, h := range highlights {
		h.Note = ""
	}
}

// addJSONFile adds a JSON file to the ZIP
func (s *Service) addJSONFile(zipWriter *zip.Writer, path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	writer, err := zipWriter.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := writer.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	return nil
}

// addStoredFile copies a stored object into the ZIP. A missing object is
// skipped and reported as not added.
func (s *Service) addStoredFile(zipWriter *zip.Writer, path string, open func() (io.ReadCloser, error)) (bool, error) {
	reader, err := open()
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer reader.Close()

	writer, err := zipWriter.Create(path)
	if err != nil {
		return false, fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, reader); err != nil {
		return false, fmt.Errorf("failed to copy data: %w", err)
	}

	return true, nil
}
