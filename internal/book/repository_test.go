package book

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ultrabooks/ultrabooks/internal/storage"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

func newTestRepository(t *testing.T) (Repository, storage.Adapter) {
	t.Helper()
	storageAdapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage adapter: %v", err)
	}
	t.Cleanup(func() { storageAdapter.Close() })
	return NewRepository(storageAdapter), storageAdapter
}

func TestBookRepository(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("SaveAndGetBook", func(t *testing.T) {
		book := &types.Book{
			ID:        "book_123",
			Title:     "Test Book",
			Author:    "Test Author",
			FileType:  types.FormatEPUB,
			CreatedAt: base,
			UpdatedAt: base,
		}
		if err := repo.SaveBook(ctx, book); err != nil {
			t.Fatalf("Failed to save book: %v", err)
		}

		retrieved, err := repo.GetBook(ctx, "book_123")
		if err != nil {
			t.Fatalf("Failed to get book: %v", err)
		}
		if retrieved.Title != book.Title || retrieved.Author != book.Author {
			t.Errorf("Book mismatch: got %+v", retrieved)
		}
	})

	t.Run("GetMissingBook", func(t *testing.T) {
		_, err := repo.GetBook(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateBook", func(t *testing.T) {
		book, err := repo.GetBook(ctx, "book_123")
		if err != nil {
			t.Fatalf("Failed to get book: %v", err)
		}
		book.Title = "Updated Title"
		book.UpdatedAt = base.Add(time.Hour)
		if err := repo.UpdateBook(ctx, book); err != nil {
			t.Fatalf("Failed to update book: %v", err)
		}

		retrieved, _ := repo.GetBook(ctx, "book_123")
		if retrieved.Title != "Updated Title" {
			t.Errorf("Title not updated: got %s", retrieved.Title)
		}

		err = repo.UpdateBook(ctx, &types.Book{ID: "missing"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound updating missing book, got %v", err)
		}
	})

	t.Run("ListBooksNewestFirst", func(t *testing.T) {
		older := &types.Book{ID: "book_old", Title: "Old", CreatedAt: base, UpdatedAt: base.Add(-time.Hour)}
		if err := repo.SaveBook(ctx, older); err != nil {
			t.Fatalf("Failed to save book: %v", err)
		}
		// annotations must not be mistaken for books
		if err := repo.SaveBookmark(ctx, &types.Bookmark{ID: "metadata", BookID: "book_old"}); err != nil {
			t.Fatalf("Failed to save bookmark: %v", err)
		}

		books, err := repo.ListBooks(ctx)
		if err != nil {
			t.Fatalf("Failed to list books: %v", err)
		}
		if len(books) != 2 {
			t.Fatalf("Expected 2 books, got %d", len(books))
		}
		if books[0].ID != "book_123" || books[1].ID != "book_old" {
			t.Errorf("Unexpected order: %s, %s", books[0].ID, books[1].ID)
		}
	})
}

func TestFileObjects(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	readAll := func(t *testing.T, rc io.ReadCloser, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return data
	}

	t.Run("RawFile", func(t *testing.T) {
		if err := repo.SaveRawFile(ctx, "b1", []byte("PK\x03\x04"), types.FormatEPUB); err != nil {
			t.Fatalf("SaveRawFile() error = %v", err)
		}
		rc, err := repo.GetRawFile(ctx, "b1", types.FormatEPUB)
		if got := readAll(t, rc, err); !bytes.Equal(got, []byte("PK\x03\x04")) {
			t.Errorf("raw file = %q", got)
		}
		if _, err := repo.GetRawFile(ctx, "b1", types.FormatPDF); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for other format, got %v", err)
		}
	})

	t.Run("Cover", func(t *testing.T) {
		if err := repo.SaveCover(ctx, "b1", []byte("png-bytes"), "image/png"); err != nil {
			t.Fatalf("SaveCover() error = %v", err)
		}
		rc, err := repo.GetCover(ctx, "b1", "image/png")
		if got := readAll(t, rc, err); string(got) != "png-bytes" {
			t.Errorf("cover = %q", got)
		}
		if _, err := repo.GetCover(ctx, "b1", "image/jpeg"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for jpeg cover, got %v", err)
		}
	})

	t.Run("Thumbnail", func(t *testing.T) {
		if _, err := repo.GetThumbnail(ctx, "b1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound before save, got %v", err)
		}
		if err := repo.SaveThumbnail(ctx, "b1", []byte("jpeg")); err != nil {
			t.Fatalf("SaveThumbnail() error = %v", err)
		}
		rc, err := repo.GetThumbnail(ctx, "b1")
		if got := readAll(t, rc, err); string(got) != "jpeg" {
			t.Errorf("thumbnail = %q", got)
		}
	})
}

func TestAnnotations(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	page := 12

	t.Run("Bookmarks", func(t *testing.T) {
		for i, id := range []string{"bm1", "bm2", "bm3"} {
			bm := &types.Bookmark{
				ID:        id,
				BookID:    "b1",
				Location:  "epubcfi(/6/4)",
				Page:      &page,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.SaveBookmark(ctx, bm); err != nil {
				t.Fatalf("SaveBookmark() error = %v", err)
			}
		}

		list, err := repo.ListBookmarks(ctx, "b1")
		if err != nil {
			t.Fatalf("ListBookmarks() error = %v", err)
		}
		if len(list) != 3 || list[0].ID != "bm3" || list[2].ID != "bm1" {
			t.Errorf("Unexpected bookmarks order: %v", ids(list))
		}

		got, err := repo.GetBookmark(ctx, "b1", "bm2")
		if err != nil {
			t.Fatalf("GetBookmark() error = %v", err)
		}
		if got.Page == nil || *got.Page != 12 {
			t.Errorf("Page = %v, want 12", got.Page)
		}

		if err := repo.DeleteBookmark(ctx, "b1", "bm2"); err != nil {
			t.Fatalf("DeleteBookmark() error = %v", err)
		}
		if err := repo.DeleteBookmark(ctx, "b1", "bm2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
		if list, _ := repo.ListBookmarks(ctx, "b1"); len(list) != 2 {
			t.Errorf("Expected 2 bookmarks after delete, got %d", len(list))
		}
	})

	t.Run("Highlights", func(t *testing.T) {
		empty, err := repo.ListHighlights(ctx, "b1")
		if err != nil {
			t.Fatalf("ListHighlights() error = %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("Expected no highlights, got %d", len(empty))
		}

		hl := &types.Highlight{ID: "h1", BookID: "b1", CFIRange: "epubcfi(/6/4!/4/2,/1:0,/1:10)", Text: "Call me", Color: "yellow", CreatedAt: base}
		if err := repo.SaveHighlight(ctx, hl); err != nil {
			t.Fatalf("SaveHighlight() error = %v", err)
		}
		got, err := repo.GetHighlight(ctx, "b1", "h1")
		if err != nil {
			t.Fatalf("GetHighlight() error = %v", err)
		}
		if got.Text != "Call me" || got.Color != "yellow" {
			t.Errorf("Unexpected highlight %+v", got)
		}
		if _, err := repo.GetHighlight(ctx, "b1", "h2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := repo.DeleteHighlight(ctx, "b1", "h1"); err != nil {
			t.Fatalf("DeleteHighlight() error = %v", err)
		}
	})

	t.Run("Progress", func(t *testing.T) {
		if _, err := repo.GetProgress(ctx, "b1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound before save, got %v", err)
		}
		p := &types.ReadingProgress{BookID: "b1", CurrentLocation: "epubcfi(/6/8)", ProgressPercentage: 42.5, LastReadAt: base}
		if err := repo.SaveProgress(ctx, p); err != nil {
			t.Fatalf("SaveProgress() error = %v", err)
		}
		got, err := repo.GetProgress(ctx, "b1")
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if got.ProgressPercentage != 42.5 || got.CurrentLocation != p.CurrentLocation {
			t.Errorf("Unexpected progress %+v", got)
		}
	})
}

func TestSettings(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	got, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if *got != types.DefaultReaderSettings() {
		t.Errorf("Expected defaults, got %+v", got)
	}

	got.Theme = "dark"
	got.FontSize = 22
	if err := repo.SaveSettings(ctx, got); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	saved, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if saved.Theme != "dark" || saved.FontSize != 22 || saved.FontFamily != "Georgia" {
		t.Errorf("Unexpected settings %+v", saved)
	}
}

func TestDeleteBookCascades(t *testing.T) {
	repo, adapter := newTestRepository(t)
	ctx := context.Background()

	book := &types.Book{ID: "b1", Title: "Doomed", FileType: types.FormatEPUB}
	if err := repo.SaveBook(ctx, book); err != nil {
		t.Fatalf("SaveBook() error = %v", err)
	}
	repo.SaveRawFile(ctx, "b1", []byte("data"), types.FormatEPUB)
	repo.SaveCover(ctx, "b1", []byte("img"), "image/jpeg")
	repo.SaveBookmark(ctx, &types.Bookmark{ID: "m", BookID: "b1"})
	repo.SaveHighlight(ctx, &types.Highlight{ID: "h", BookID: "b1"})
	repo.SaveProgress(ctx, &types.ReadingProgress{BookID: "b1"})
	repo.SaveBook(ctx, &types.Book{ID: "b10", Title: "Survivor"})

	if err := repo.DeleteBook(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}

	left, err := adapter.List(ctx, "books/b1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected nothing under books/b1/, got %v", left)
	}
	if _, err := repo.GetBook(ctx, "b10"); err != nil {
		t.Errorf("Unrelated book was removed: %v", err)
	}
	if err := repo.DeleteBook(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func ids(list []*types.Bookmark) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func TestModifyBook(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	if err := repo.SaveBook(ctx, &types.Book{ID: "b1", Title: "Old"}); err != nil {
		t.Fatalf("SaveBook() error = %v", err)
	}

	t.Run("Concurrent edits both land", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		firstDone := make(chan error, 1)
		go func() {
			_, err := repo.ModifyBook(ctx, "b1", func(b *types.Book) error {
				close(entered)
				<-release
				b.Title = "New"
				return nil
			})
			firstDone <- err
		}()
		<-entered

		secondDone := make(chan error, 1)
		go func() {
			_, err := repo.ModifyBook(ctx, "b1", func(b *types.Book) error {
				b.ThumbnailURL = "/api/v1/books/b1/thumbnail"
				return nil
			})
			secondDone <- err
		}()

		select {
		case err := <-secondDone:
			t.Fatalf("second edit finished while the first held the book (err = %v)", err)
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		if err := <-firstDone; err != nil {
			t.Fatalf("first ModifyBook() error = %v", err)
		}
		if err := <-secondDone; err != nil {
			t.Fatalf("second ModifyBook() error = %v", err)
		}

		got, err := repo.GetBook(ctx, "b1")
		if err != nil {
			t.Fatalf("GetBook() error = %v", err)
		}
		if got.Title != "New" || got.ThumbnailURL != "/api/v1/books/b1/thumbnail" {
			t.Errorf("book = title %q thumbnail %q, want both edits", got.Title, got.ThumbnailURL)
		}
	})

	t.Run("Callback error aborts the write", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := repo.ModifyBook(ctx, "b1", func(b *types.Book) error {
			b.Title = "Discarded"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("ModifyBook() error = %v, want boom", err)
		}
		got, _ := repo.GetBook(ctx, "b1")
		if got.Title != "New" {
			t.Errorf("Title = %q, want New", got.Title)
		}
	})

	t.Run("Missing book", func(t *testing.T) {
		_, err := repo.ModifyBook(ctx, "missing", func(*types.Book) error { return nil })
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteBookRemovesOrphanedFiles(t *testing.T) {
	repo, adapter := newTestRepository(t)
	ctx := context.Background()

	if err := repo.SaveRawFile(ctx, "orphan", []byte("data"), types.FormatEPUB); err != nil {
		t.Fatalf("SaveRawFile() error = %v", err)
	}
	if err := repo.DeleteBook(ctx, "orphan"); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}
	if left, _ := adapter.List(ctx, "books/orphan/"); len(left) != 0 {
		t.Errorf("Expected nothing under books/orphan/, got %v", left)
	}
}
