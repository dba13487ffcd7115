package api

import (
	"archive/zip"
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/ultrabooks/ultrabooks/pkg/types"
)

func TestBookHandler_Upload(t *testing.T) {
	srv := newTestServer(t, 1<<20)

	t.Run("EPUB", func(t *testing.T) {
		w := srv.upload(t, "/api/v1/books", "moby.epub", testEPUB(t))
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var b types.Book
		decodeBody(t, w, &b)
		if b.Title != "Moby Dick" || b.Author != "Herman Melville" || b.FileType != "epub" {
			t.Errorf("book = %+v", b)
		}
		if b.CoverType != "image/gif" || b.CoverURL != "/api/v1/books/"+b.ID+"/cover" {
			t.Errorf("cover = %q %q", b.CoverType, b.CoverURL)
		}
	})

	t.Run("Unsupported format", func(t *testing.T) {
		w := srv.upload(t, "/api/v1/books", "notes.txt", []byte("hello"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("Empty file", func(t *testing.T) {
		w := srv.upload(t, "/api/v1/books", "empty.pdf", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("Too large", func(t *testing.T) {
		w := srv.upload(t, "/api/v1/books", "big.pdf", bytes.Repeat([]byte("x"), 1<<20+1))
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", w.Code)
		}
	})

	t.Run("Far too large", func(t *testing.T) {
		w := srv.upload(t, "/api/v1/books", "huge.pdf", bytes.Repeat([]byte("x"), 3<<20))
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", w.Code)
		}
	})

	t.Run("No file part", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/api/v1/books", strings.NewReader("x"), "text/plain")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestBookHandler_Inspect(t *testing.T) {
	srv := newTestServer(t, 0)

	w := srv.upload(t, "/api/v1/inspect", "moby.epub", testEPUB(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got map[string]interface{}
	decodeBody(t, w, &got)
	if got["title"] != "Moby Dick" || got["author"] != "Herman Melville" {
		t.Errorf("inspection = %v", got)
	}
	cover, ok := got["cover"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected cover object, got %v", got["cover"])
	}
	if cover["mime_type"] != "image/gif" || cover["method"] != "meta-cover" || cover["size"] != float64(6) {
		t.Errorf("cover = %v", cover)
	}
	if _, leaked := cover["data"]; leaked {
		t.Error("cover bytes must not be serialized")
	}

	w = srv.do(t, http.MethodGet, "/api/v1/books", nil, "")
	var list struct{ Count int }
	decodeBody(t, w, &list)
	if list.Count != 0 {
		t.Errorf("inspect stored %d books", list.Count)
	}
}

func TestBookHandler_Lifecycle(t *testing.T) {
	srv := newTestServer(t, 0)
	epub := testEPUB(t)

	w := srv.upload(t, "/api/v1/books", "moby.epub", epub)
	var created types.Book
	decodeBody(t, w, &created)
	base := "/api/v1/books/" + created.ID

	t.Run("List", func(t *testing.T) {
		w := srv.do(t, http.MethodGet, "/api/v1/books", nil, "")
		var list struct {
			Books []types.Book `json:"books"`
			Count int          `json:"count"`
		}
		decodeBody(t, w, &list)
		if list.Count != 1 || list.Books[0].ID != created.ID {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("Search", func(t *testing.T) {
		for query, want := range map[string]int{"melville": 1, "MOBY": 1, "thoreau": 0} {
			w := srv.do(t, http.MethodGet, "/api/v1/books?q="+query, nil, "")
			var list struct {
				Count int `json:"count"`
			}
			decodeBody(t, w, &list)
			if list.Count != want {
				t.Errorf("q=%s count = %d, want %d", query, list.Count, want)
			}
		}
	})

	t.Run("File", func(t *testing.T) {
		w := srv.do(t, http.MethodGet, base+"/file", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/epub+zip" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "moby.epub") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if !bytes.Equal(w.Body.Bytes(), epub) {
			t.Error("file body differs from upload")
		}
	})

	t.Run("Cover", func(t *testing.T) {
		w := srv.do(t, http.MethodGet, base+"/cover", nil, "")
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/gif" || w.Body.String() != "GIF89a" {
			t.Errorf("cover response = %d %q %q", w.Code, w.Header().Get("Content-Type"), w.Body.String())
		}
	})

	t.Run("Thumbnail not yet generated", func(t *testing.T) {
		w := srv.do(t, http.MethodGet, base+"/thumbnail", nil, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("Patch", func(t *testing.T) {
		w := srv.doJSON(t, http.MethodPatch, base, map[string]string{"title": "Moby-Dick; or, The Whale"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var b types.Book
		decodeBody(t, w, &b)
		if b.Title != "Moby-Dick; or, The Whale" || b.Author != "Herman Melville" {
			t.Errorf("book = %+v", b)
		}

		w = srv.doJSON(t, http.MethodPatch, base, map[string]string{"title": "  "})
		if w.Code != http.StatusBadRequest {
			t.Errorf("blank title status = %d, want 400", w.Code)
		}
		w = srv.doJSON(t, http.MethodPatch, base, map[string]string{"isbn": "123"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("unknown field status = %d, want 400", w.Code)
		}
	})

	t.Run("Export", func(t *testing.T) {
		w := srv.do(t, http.MethodGet, base+"/export?include_file=true", nil, "")
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/zip" {
			t.Fatalf("export response = %d %q", w.Code, w.Header().Get("Content-Type"))
		}
		zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
		if err != nil {
			t.Fatalf("export is not a zip: %v", err)
		}
		names := map[string]bool{}
		for _, f := range zr.File {
			names[f.Name] = true
		}
		for _, want := range []string{"manifest.json", "bookmarks.json", "highlights.json", "cover.gif", "book.epub"} {
			if !names[want] {
				t.Errorf("export missing %s", want)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		w := srv.do(t, http.MethodDelete, base, nil, "")
		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d", w.Code)
		}
		for _, target := range []string{base, base + "/file", base + "/cover", base + "/export"} {
			if w := srv.do(t, http.MethodGet, target, nil, ""); w.Code != http.StatusNotFound {
				t.Errorf("GET %s = %d, want 404", target, w.Code)
			}
		}
		if w := srv.do(t, http.MethodDelete, base, nil, ""); w.Code != http.StatusNotFound {
			t.Errorf("second delete = %d, want 404", w.Code)
		}
	})
}
