package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

const (
	defaultJPEGQuality = 85
	defaultMaxPixels   = 100 * 1000 * 1000
)

// Thumbnailer renders a stored cover into a small JPEG
type Thumbnailer struct {
	repo        book.Repository
	width       int
	jpegQuality int
	maxPixels   int
}

// NewThumbnailer creates a thumbnailer producing images at most width pixels wide
func NewThumbnailer(repo book.Repository, width, jpegQuality int) *Thumbnailer {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = defaultJPEGQuality
	}
	return &Thumbnailer{
		repo:        repo,
		width:       width,
		jpegQuality: jpegQuality,
		maxPixels:   defaultMaxPixels,
	}
}

// Generate builds and stores the thumbnail for a book, then records its URL
func (t *Thumbnailer) Generate(ctx context.Context, job Job) error {
	reader, err := t.repo.GetCover(ctx, job.BookID, job.CoverType)
	if err != nil {
		return fmt.Errorf("open cover: %w", err)
	}
	input, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fmt.Errorf("read cover: %w", err)
	}

	data, err := t.Render(input)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.repo.SaveThumbnail(ctx, job.BookID, data); err != nil {
		return err
	}

	_, err = t.repo.ModifyBook(ctx, job.BookID, func(b *types.Book) error {
		b.ThumbnailURL = ThumbnailURL(job.BookID)
		return nil
	})
	return err
}

// Render decodes an image, shrinks it to the configured width and encodes
// it as JPEG. Images narrower than the width keep their size.
func (t *Thumbnailer) Render(input []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode cover config: %w", err)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); t.maxPixels > 0 && pixels > uint64(t.maxPixels) {
		return nil, fmt.Errorf("cover too large to decode: %dx%d", cfg.Width, cfg.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}

	processed := src
	if t.width > 0 && src.Bounds().Dx() > t.width {
		processed = imaging.Resize(src, t.width, 0, imaging.Lanczos)
	}

	// JPEG has no alpha channel
	bounds := processed.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, processed, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(t.jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailURL is the API path serving a book's thumbnail
func ThumbnailURL(bookID string) string {
	return "/api/v1/books/" + bookID + "/thumbnail"
}
