package book

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ultrabooks/ultrabooks/internal/storage"
	"github.com/ultrabooks/ultrabooks/internal/util"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// Repository handles library persistence
type Repository interface {
	// SaveBook stores book metadata
	SaveBook(ctx context.Context, book *types.Book) error

	// GetBook retrieves book metadata by ID
	GetBook(ctx context.Context, bookID string) (*types.Book, error)

	// UpdateBook updates book metadata
	UpdateBook(ctx context.Context, book *types.Book) error

	// ModifyBook loads a book, applies fn and stores the result. Calls for
	// the same book are serialized so concurrent edits are not lost. An
	// error from fn aborts the write.
	ModifyBook(ctx context.Context, bookID string, fn func(*types.Book) error) (*types.Book, error)

	// ListBooks returns all books, most recently updated first
	ListBooks(ctx context.Context) ([]*types.Book, error)

	// DeleteBook removes a book and everything stored under it, including
	// objects left behind by an upload that never saved its metadata
	DeleteBook(ctx context.Context, bookID string) error

	// SaveRawFile stores the uploaded raw file
	SaveRawFile(ctx context.Context, bookID string, data []byte, format string) error

	// GetRawFile opens the uploaded raw file
	GetRawFile(ctx context.Context, bookID, format string) (io.ReadCloser, error)

	// SaveCover stores an extracted cover image
	SaveCover(ctx context.Context, bookID string, data []byte, mimeType string) error

	// GetCover opens a stored cover image
	GetCover(ctx context.Context, bookID, mimeType string) (io.ReadCloser, error)

	// SaveThumbnail stores the cover thumbnail
	SaveThumbnail(ctx context.Context, bookID string, data []byte) error

	// GetThumbnail opens the cover thumbnail
	GetThumbnail(ctx context.Context, bookID string) (io.ReadCloser, error)

	SaveBookmark(ctx context.Context, bookmark *types.Bookmark) error
	GetBookmark(ctx context.Context, bookID, bookmarkID string) (*types.Bookmark, error)
	ListBookmarks(ctx context.Context, bookID string) ([]*types.Bookmark, error)
	DeleteBookmark(ctx context.Context, bookID, bookmarkID string) error

	SaveHighlight(ctx context.Context, highlight *types.Highlight) error
	GetHighlight(ctx context.Context, bookID, highlightID string) (*types.Highlight, error)
	ListHighlights(ctx context.Context, bookID string) ([]*types.Highlight, error)
	DeleteHighlight(ctx context.Context, bookID, highlightID string) error

	// SaveProgress stores the reading position for a book
	SaveProgress(ctx context.Context, progress *types.ReadingProgress) error

	// GetProgress retrieves the reading position for a book
	GetProgress(ctx context.Context, bookID string) (*types.ReadingProgress, error)

	// SaveShare stores a share under its code
	SaveShare(ctx context.Context, share *types.Share) error

	// GetShare retrieves a share by code
	GetShare(ctx context.Context, code string) (*types.Share, error)

	// ListShares returns a book's shares, newest first
	ListShares(ctx context.Context, bookID string) ([]*types.Share, error)

	// DeleteShare removes a share
	DeleteShare(ctx context.Context, code string) error

	// SaveSettings stores the reader settings
	SaveSettings(ctx context.Context, settings *types.ReaderSettings) error

	// GetSettings retrieves the reader settings, or the defaults if none were saved
	GetSettings(ctx context.Context) (*types.ReaderSettings, error)
}

// StorageRepository implements Repository using a storage adapter
type StorageRepository struct {
	storage storage.Adapter
	locks   *bookLocks
}

// NewRepository creates a new book repository
func NewRepository(storageAdapter storage.Adapter) Repository {
	return &StorageRepository{
		storage: storageAdapter,
		locks:   newBookLocks(),
	}
}

// SaveBook stores book metadata
func (r *StorageRepository) SaveBook(ctx context.Context, book *types.Book) error {
	if err := r.putJSON(ctx, util.BookMetadataPath(book.ID), book); err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}

// GetBook retrieves book metadata by ID
func (r *StorageRepository) GetBook(ctx context.Context, bookID string) (*types.Book, error) {
	var book types.Book
	if err := r.getJSON(ctx, util.BookMetadataPath(bookID), &book); err != nil {
		return nil, fmt.Errorf("failed to get book %s: %w", bookID, err)
	}
	return &book, nil
}

// UpdateBook updates book metadata
func (r *StorageRepository) UpdateBook(ctx context.Context, book *types.Book) error {
	unlock := r.locks.lock(book.ID)
	defer unlock()

	if _, err := r.GetBook(ctx, book.ID); err != nil {
		return err
	}
	return r.SaveBook(ctx, book)
}

// ModifyBook applies fn to the stored book under the book's lock
func (r *StorageRepository) ModifyBook(ctx context.Context, bookID string, fn func(*types.Book) error) (*types.Book, error) {
	unlock := r.locks.lock(bookID)
	defer unlock()

	book, err := r.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if err := fn(book); err != nil {
		return nil, err
	}
	if err := r.SaveBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// ListBooks returns all books
func (r *StorageRepository) ListBooks(ctx context.Context) ([]*types.Book, error) {
	paths, err := r.storage.List(ctx, "books/")
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	books := make([]*types.Book, 0)
	for _, p := range paths {
		// books/<id>/metadata.json only; annotations live deeper
		if path.Base(p) != "metadata.json" || strings.Count(p, "/") != 2 {
			continue
		}

		var book types.Book
		if err := r.getJSON(ctx, p, &book); err != nil {
			continue // Skip books that can't be read
		}
		books = append(books, &book)
	}

	sort.SliceStable(books, func(i, j int) bool {
		if !books[i].UpdatedAt.Equal(books[j].UpdatedAt) {
			return books[i].UpdatedAt.After(books[j].UpdatedAt)
		}
		return books[i].ID < books[j].ID
	})
	return books, nil
}

// DeleteBook removes a book and everything stored under it
func (r *StorageRepository) DeleteBook(ctx context.Context, bookID string) error {
	unlock := r.locks.lock(bookID)
	defer unlock()

	deleted, err := storage.DeletePrefix(ctx, r.storage, util.BookDir(bookID))
	if err != nil {
		return fmt.Errorf("failed to delete book %s: %w", bookID, err)
	}
	if deleted == 0 {
		return fmt.Errorf("failed to delete book %s: %w", bookID, ErrNotFound)
	}

	shares, err := r.ListShares(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete shares of book %s: %w", bookID, err)
	}
	for _, share := range shares {
		if err := r.storage.Delete(ctx, util.SharePath(share.Code)); err != nil {
			return fmt.Errorf("failed to delete share %s: %w", share.Code, err)
		}
	}
	return nil
}

// SaveRawFile stores the uploaded raw file
func (r *StorageRepository) SaveRawFile(ctx context.Context, bookID string, data []byte, format string) error {
	if err := r.storage.Put(ctx, util.RawFilePath(bookID, format), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save raw file: %w", err)
	}
	return nil
}

// GetRawFile opens the uploaded raw file
func (r *StorageRepository) GetRawFile(ctx context.Context, bookID, format string) (io.ReadCloser, error) {
	return r.open(ctx, util.RawFilePath(bookID, format))
}

// SaveCover stores an extracted cover image
func (r *StorageRepository) SaveCover(ctx context.Context, bookID string, data []byte, mimeType string) error {
	p := util.CoverPath(bookID, util.CoverExtension(mimeType))
	if err := r.storage.Put(ctx, p, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save cover: %w", err)
	}
	return nil
}

// GetCover opens a stored cover image
func (r *StorageRepository) GetCover(ctx context.Context, bookID, mimeType string) (io.ReadCloser, error) {
	return r.open(ctx, util.CoverPath(bookID, util.CoverExtension(mimeType)))
}

// SaveThumbnail stores the cover thumbnail
func (r *StorageRepository) SaveThumbnail(ctx context.Context, bookID string, data []byte) error {
	if err := r.storage.Put(ctx, util.ThumbnailPath(bookID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// GetThumbnail opens the cover thumbnail
func (r *StorageRepository) GetThumbnail(ctx context.Context, bookID string) (io.ReadCloser, error) {
	return r.open(ctx, util.ThumbnailPath(bookID))
}

// SaveBookmark stores a bookmark
func (r *StorageRepository) SaveBookmark(ctx context.Context, bookmark *types.Bookmark) error {
	if err := r.putJSON(ctx, util.BookmarkPath(bookmark.BookID, bookmark.ID), bookmark); err != nil {
		return fmt.Errorf("failed to save bookmark: %w", err)
	}
	return nil
}

// GetBookmark retrieves a bookmark by ID
func (r *StorageRepository) GetBookmark(ctx context.Context, bookID, bookmarkID string) (*types.Bookmark, error) {
	var bookmark types.Bookmark
	if err := r.getJSON(ctx, util.BookmarkPath(bookID, bookmarkID), &bookmark); err != nil {
		return nil, fmt.Errorf("failed to get bookmark %s: %w", bookmarkID, err)
	}
	return &bookmark, nil
}

// ListBookmarks returns a book's bookmarks, newest first
func (r *StorageRepository) ListBookmarks(ctx context.Context, bookID string) ([]*types.Bookmark, error) {
	bookmarks, err := listJSON[types.Bookmark](ctx, r, util.BookmarkDir(bookID))
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	sort.SliceStable(bookmarks, func(i, j int) bool {
		return newerFirst(bookmarks[i].CreatedAt, bookmarks[j].CreatedAt, bookmarks[i].ID, bookmarks[j].ID)
	})
	return bookmarks, nil
}

// DeleteBookmark removes a bookmark
func (r *StorageRepository) DeleteBookmark(ctx context.Context, bookID, bookmarkID string) error {
	if err := r.deleteDocument(ctx, util.BookmarkPath(bookID, bookmarkID)); err != nil {
		return fmt.Errorf("failed to delete bookmark %s: %w", bookmarkID, err)
	}
	return nil
}

// SaveHighlight stores a highlight
func (r *StorageRepository) SaveHighlight(ctx context.Context, highlight *types.Highlight) error {
	if err := r.putJSON(ctx, util.HighlightPath(highlight.BookID, highlight.ID), highlight); err != nil {
		return fmt.Errorf("failed to save highlight: %w", err)
	}
	return nil
}

// GetHighlight retrieves a highlight by ID
func (r *StorageRepository) GetHighlight(ctx context.Context, bookID, highlightID string) (*types.Highlight, error) {
	var highlight types.Highlight
	if err := r.getJSON(ctx, util.HighlightPath(bookID, highlightID), &highlight); err != nil {
		return nil, fmt.Errorf("failed to get highlight %s: %w", highlightID, err)
	}
	return &highlight, nil
}

// ListHighlights returns a book's highlights, newest first
func (r *StorageRepository) ListHighlights(ctx context.Context, bookID string) ([]*types.Highlight, error) {
	highlights, err := listJSON[types.Highlight](ctx, r, util.HighlightDir(bookID))
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}
	sort.SliceStable(highlights, func(i, j int) bool {
		return newerFirst(highlights[i].CreatedAt, highlights[j].CreatedAt, highlights[i].ID, highlights[j].ID)
	})
	return highlights, nil
}

// DeleteHighlight removes a highlight
func (r *StorageRepository) DeleteHighlight(ctx context.Context, bookID, highlightID string) error {
	if err := r.deleteDocument(ctx, util.HighlightPath(bookID, highlightID)); err != nil {
		return fmt.Errorf("failed to delete highlight %s: %w", highlightID, err)
	}
	return nil
}

// SaveProgress stores the reading position for a book
func (r *StorageRepository) SaveProgress(ctx context.Context, progress *types.ReadingProgress) error {
	if err := r.putJSON(ctx, util.ProgressPath(progress.BookID), progress); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// GetProgress retrieves the reading position for a book
func (r *StorageRepository) GetProgress(ctx context.Context, bookID string) (*types.ReadingProgress, error) {
	var progress types.ReadingProgress
	if err := r.getJSON(ctx, util.ProgressPath(bookID), &progress); err != nil {
		return nil, fmt.Errorf("failed to get progress for %s: %w", bookID, err)
	}
	return &progress, nil
}

// SaveShare stores a share under its code
func (r *StorageRepository) SaveShare(ctx context.Context, share *types.Share) error {
	if err := r.putJSON(ctx, util.SharePath(share.Code), share); err != nil {
		return fmt.Errorf("failed to save share: %w", err)
	}
	return nil
}

// GetShare retrieves a share by code
func (r *StorageRepository) GetShare(ctx context.Context, code string) (*types.Share, error) {
	var share types.Share
	if err := r.getJSON(ctx, util.SharePath(code), &share); err != nil {
		return nil, fmt.Errorf("failed to get share %s: %w", code, err)
	}
	return &share, nil
}

// ListShares returns a book's shares, newest first
func (r *StorageRepository) ListShares(ctx context.Context, bookID string) ([]*types.Share, error) {
	all, err := listJSON[types.Share](ctx, r, util.ShareDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	shares := make([]*types.Share, 0, len(all))
	for _, share := range all {
		if share.BookID == bookID {
			shares = append(shares, share)
		}
	}
	sort.SliceStable(shares, func(i, j int) bool {
		return newerFirst(shares[i].CreatedAt, shares[j].CreatedAt, shares[i].Code, shares[j].Code)
	})
	return shares, nil
}

// DeleteShare removes a share
func (r *StorageRepository) DeleteShare(ctx context.Context, code string) error {
	if err := r.deleteDocument(ctx, util.SharePath(code)); err != nil {
		return fmt.Errorf("failed to delete share %s: %w", code, err)
	}
	return nil
}

// SaveSettings stores the reader settings
func (r *StorageRepository) SaveSettings(ctx context.Context, settings *types.ReaderSettings) error {
	if err := r.putJSON(ctx, util.SettingsPath(), settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetSettings retrieves the reader settings, or the defaults if none were saved
func (r *StorageRepository) GetSettings(ctx context.Context) (*types.ReaderSettings, error) {
	settings := types.DefaultReaderSettings()
	if err := r.getJSON(ctx, util.SettingsPath(), &settings); err != nil {
		if errors.Is(err, ErrNotFound) {
			defaults := types.DefaultReaderSettings()
			return &defaults, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (r *StorageRepository) putJSON(ctx context.Context, p string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", p, err)
	}
	return r.storage.Put(ctx, p, bytes.NewReader(data))
}

func (r *StorageRepository) getJSON(ctx context.Context, p string, v any) error {
	reader, err := r.open(ctx, p)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := json.NewDecoder(reader).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// open maps a missing object onto ErrNotFound
func (r *StorageRepository) open(ctx context.Context, p string) (io.ReadCloser, error) {
	reader, err := r.storage.Get(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, err
	}
	return reader, nil
}

func (r *StorageRepository) mustExist(ctx context.Context, p string) error {
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return nil
}

func (r *StorageRepository) deleteDocument(ctx context.Context, p string) error {
	if err := r.mustExist(ctx, p); err != nil {
		return err
	}
	return r.storage.Delete(ctx, p)
}

// listJSON decodes every JSON document under prefix, skipping unreadable ones
func listJSON[T any](ctx context.Context, r *StorageRepository, prefix string) ([]*T, error) {
	paths, err := r.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	items := make([]*T, 0, len(paths))
	for _, p := range paths {
		if path.Ext(p) != ".json" {
			continue
		}
		var item T
		if err := r.getJSON(ctx, p, &item); err != nil {
			continue
		}
		items = append(items, &item)
	}
	return items, nil
}

// newerFirst orders by creation time descending, breaking ties by ID
func newerFirst(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID < bID
}

// bookLocks hands out one mutex per book ID and forgets it once unused
type bookLocks struct {
	mu    sync.Mutex
	locks map[string]*bookLock
}

type bookLock struct {
	mu   sync.Mutex
	refs int
}

func newBookLocks() *bookLocks {
	return &bookLocks{locks: make(map[string]*bookLock)}
}

func (l *bookLocks) lock(bookID string) func() {
	l.mu.Lock()
	bl, ok := l.locks[bookID]
	if !ok {
		bl = &bookLock{}
		l.locks[bookID] = bl
	}
	bl.refs++
	l.mu.Unlock()

	bl.mu.Lock()
	return func() {
		bl.mu.Unlock()

		l.mu.Lock()
		bl.refs--
		if bl.refs == 0 {
			delete(l.locks, bookID)
		}
		l.mu.Unlock()
	}
}
