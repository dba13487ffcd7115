package library

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/parser"
	"github.com/ultrabooks/ultrabooks/internal/storage"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

type recordedThumbnails struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordedThumbnails) Enqueue(bookID, coverType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, bookID+":"+coverType)
	return nil
}

func buildEPUB(t *testing.T, title, author string, withCover bool) []byte {
	t.Helper()
	metadata := ""
	if title != "" {
		metadata += "<dc:title>" + title + "</dc:title>"
	}
	if author != "" {
		metadata += "<dc:creator>" + author + "</dc:creator>"
	}
	manifest := `<item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>`
	files := map[string]string{
		"META-INF/container.xml": `<container><rootfiles><rootfile full-path="OEBPS/content.opf"/></rootfiles></container>`,
	}
	if withCover {
		manifest += `<item id="cover" href="images/cover.jpg" media-type="image/jpeg"/>`
		files["OEBPS/images/cover.jpg"] = "JPEGDATA"
	}
	files["OEBPS/content.opf"] = `<package xmlns="http://www.idpf.org/2007/opf"><metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		metadata + `</metadata><manifest>` + manifest + `</manifest></package>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc    *Service
	repo   book.Repository
	thumbs *recordedThumbnails
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalAdapter() error = %v", err)
	}
	repo := book.NewRepository(adapter)
	thumbs := &recordedThumbnails{}
	if opts.Thumbnails == nil {
		opts.Thumbnails = thumbs
	}
	ids := 0
	if opts.NewID == nil {
		opts.NewID = func() string {
			ids++
			return "book-" + string(rune('0'+ids))
		}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	}
	opts.Logger = zap.NewNop()
	svc := NewService(repo, parser.NewFactory(zap.NewNop(), 1<<20), opts)
	return fixture{svc: svc, repo: repo, thumbs: thumbs}
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("EPUB with metadata and cover", func(t *testing.T) {
		f := newFixture(t, Options{})
		data := buildEPUB(t, "Moby Dick", "Herman Melville", true)

		b, err := f.svc.Upload(ctx, "moby.epub", data)
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if b.ID != "book-1" || b.Title != "Moby Dick" || b.Author != "Herman Melville" {
			t.Errorf("book = %+v", b)
		}
		if b.FileType != types.FormatEPUB || b.FileSize != int64(len(data)) || b.OriginalFilename != "moby.epub" {
			t.Errorf("file fields = %s %d %s", b.FileType, b.FileSize, b.OriginalFilename)
		}
		if b.FileURL != "/api/v1/books/book-1/file" {
			t.Errorf("FileURL = %q", b.FileURL)
		}
		if b.CoverURL != "/api/v1/books/book-1/cover" || b.CoverType != "image/jpeg" {
			t.Errorf("cover = %q %q", b.CoverURL, b.CoverType)
		}
		if len(f.thumbs.jobs) != 1 || f.thumbs.jobs[0] != "book-1:image/jpeg" {
			t.Errorf("thumbnail jobs = %v", f.thumbs.jobs)
		}

		stored, err := f.repo.GetBook(ctx, b.ID)
		if err != nil {
			t.Fatalf("GetBook() error = %v", err)
		}
		if stored.Title != "Moby Dick" {
			t.Errorf("stored title = %q", stored.Title)
		}

		rc, err := f.repo.GetCover(ctx, b.ID, "image/jpeg")
		if err != nil {
			t.Fatalf("GetCover() error = %v", err)
		}
		cover, _ := io.ReadAll(rc)
		rc.Close()
		if string(cover) != "JPEGDATA" {
			t.Errorf("cover bytes = %q", cover)
		}

		rc, err = f.repo.GetRawFile(ctx, b.ID, types.FormatEPUB)
		if err != nil {
			t.Fatalf("GetRawFile() error = %v", err)
		}
		raw, _ := io.ReadAll(rc)
		rc.Close()
		if !bytes.Equal(raw, data) {
			t.Error("raw file differs from upload")
		}
	})

	t.Run("EPUB without title falls back to filename", func(t *testing.T) {
		f := newFixture(t, Options{})
		b, err := f.svc.Upload(ctx, "The Whale.EPUB", buildEPUB(t, "", "", false))
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if b.Title != "The Whale" || b.Author != "" {
			t.Errorf("title/author = %q/%q", b.Title, b.Author)
		}
		if b.CoverURL != "" || len(f.thumbs.jobs) != 0 {
			t.Errorf("unexpected cover %q, jobs %v", b.CoverURL, f.thumbs.jobs)
		}
	})

	t.Run("PDF uses filename", func(t *testing.T) {
		f := newFixture(t, Options{})
		b, err := f.svc.Upload(ctx, `C:\books\Field Notes.pdf`, []byte("%PDF-1.7"))
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if b.Title != "Field Notes" || b.FileType != types.FormatPDF || b.OriginalFilename != "Field Notes.pdf" {
			t.Errorf("book = %+v", b)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		f := newFixture(t, Options{MaxFileSize: 16})
		tests := []struct {
			name     string
			filename string
			data     []byte
			want     error
		}{
			{"unsupported", "notes.txt", []byte("hello"), ErrUnsupportedFormat},
			{"no extension", "README", []byte("hello"), ErrUnsupportedFormat},
			{"too large", "big.pdf", bytes.Repeat([]byte("x"), 17), ErrFileTooLarge},
			{"empty", "empty.epub", nil, ErrEmptyFile},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Upload(ctx, tt.filename, tt.data)
				if !errors.Is(err, tt.want) {
					t.Errorf("Upload() error = %v, want %v", err, tt.want)
				}
			})
		}

		books, _ := f.repo.ListBooks(ctx)
		if len(books) != 0 {
			t.Errorf("rejected uploads stored %d books", len(books))
		}
	})

	t.Run("Accepted formats restrict uploads", func(t *testing.T) {
		f := newFixture(t, Options{AcceptedFormats: []string{types.FormatEPUB}})
		if _, err := f.svc.Upload(ctx, "doc.pdf", []byte("%PDF")); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

func TestInspect(t *testing.T) {
	f := newFixture(t, Options{})
	got, err := f.svc.Inspect(context.Background(), "moby.epub", buildEPUB(t, "Moby Dick", "", true))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if got.Title != "Moby Dick" || got.Author != "" || got.Cover == nil || got.Cover.Method != "cover-id" {
		t.Errorf("inspection = %+v", got)
	}

	books, _ := f.repo.ListBooks(context.Background())
	if len(books) != 0 {
		t.Error("Inspect must not store anything")
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	b, err := f.svc.Upload(ctx, "draft.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	later := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return later }

	title, author := "  Final Title ", "Ann Author"
	updated, err := f.svc.Update(ctx, b.ID, types.BookPatch{Title: &title, Author: &author})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "Final Title" || updated.Author != "Ann Author" || !updated.UpdatedAt.Equal(later) {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.CreatedAt.Equal(b.CreatedAt) {
		t.Error("CreatedAt must not change")
	}

	blank := " "
	if _, err := f.svc.Update(ctx, b.ID, types.BookPatch{Title: &blank}); !errors.Is(err, ErrInvalidPatch) {
		t.Errorf("Expected ErrInvalidPatch, got %v", err)
	}
	if _, err := f.svc.Update(ctx, "missing", types.BookPatch{Title: &title}); !errors.Is(err, book.ErrNotFound) {
		t.Errorf("Expected book.ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	b, err := f.svc.Upload(ctx, "gone.epub", buildEPUB(t, "Gone", "", true))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	f.repo.SaveBookmark(ctx, &types.Bookmark{ID: "m1", BookID: b.ID})

	if err := f.svc.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.repo.GetBook(ctx, b.ID); !errors.Is(err, book.ErrNotFound) {
		t.Errorf("book still present: %v", err)
	}
	if _, err := f.repo.GetBookmark(ctx, b.ID, "m1"); !errors.Is(err, book.ErrNotFound) {
		t.Errorf("bookmark still present: %v", err)
	}
	if err := f.svc.Delete(ctx, b.ID); !errors.Is(err, book.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	for _, b := range []struct{ title, author string }{
		{"Moby Dick", "Herman Melville"},
		{"Bartleby", "Herman Melville"},
		{"Walden", "Henry David Thoreau"},
	} {
		if _, err := f.svc.Upload(ctx, b.title+".epub", buildEPUB(t, b.title, b.author, false)); err != nil {
			t.Fatalf("Upload(%s) error = %v", b.title, err)
		}
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Bartleby", "Moby Dick", "Walden"}},
		{"  ", []string{"Bartleby", "Moby Dick", "Walden"}},
		{"moby", []string{"Moby Dick"}},
		{"MELVILLE", []string{"Bartleby", "Moby Dick"}},
		{"hen", []string{"Walden"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		books, err := f.svc.Search(ctx, tt.query)
		if err != nil {
			t.Fatalf("Search(%q) error = %v", tt.query, err)
		}
		var got []string
		for _, b := range books {
			got = append(got, b.Title)
		}
		slices.Sort(got)
		if !slices.Equal(got, tt.want) {
			t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := map[string]string{
		"Moby Dick.epub":  "Moby Dick",
		"Report.PDF":      "Report",
		"kindle.Mobi":     "kindle",
		"archive.tar.gz":  "archive.tar.gz",
		"no-extension":    "no-extension",
		"double.epub.pdf": "double.epub",
	}
	for in, want := range tests {
		if got := TitleFromFilename(in); got != want {
			t.Errorf("TitleFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

// failingSaveRepository stores files normally but refuses book metadata
type failingSaveRepository struct {
	book.Repository
}

func (r failingSaveRepository) SaveBook(ctx context.Context, b *types.Book) error {
	return errors.New("metadata store unavailable")
}

func TestUploadRemovesFilesWhenBookNotSaved(t *testing.T) {
	ctx := context.Background()
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalAdapter() error = %v", err)
	}
	thumbs := &recordedThumbnails{}
	svc := NewService(failingSaveRepository{book.NewRepository(adapter)}, parser.NewFactory(zap.NewNop(), 1<<20), Options{
		Thumbnails: thumbs,
		NewID:      func() string { return "lost" },
		Logger:     zap.NewNop(),
	})

	if _, err := svc.Upload(ctx, "moby.epub", buildEPUB(t, "Moby Dick", "", true)); err == nil {
		t.Fatal("Upload() should fail when the book cannot be saved")
	}

	left, err := adapter.List(ctx, "books/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected no objects after failed upload, got %v", left)
	}
	if len(thumbs.jobs) != 0 {
		t.Errorf("Expected no thumbnail jobs, got %v", thumbs.jobs)
	}
}
