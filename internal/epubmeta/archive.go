package epubmeta

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// containerPath is the fixed entry point of every EPUB.
const containerPath = "META-INF/container.xml"

// DefaultMaxMemberBytes caps the decompressed size of a single archive
// member. Declared sizes can be forged, so reads are limited as well.
const DefaultMaxMemberBytes int64 = 64 << 20

// archive is a ZIP opened over an in-memory buffer for one extraction call.
type archive struct {
	files map[string]*zip.File
	limit int64
}

func openArchive(data []byte, limit int64) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotArchive, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		// First entry wins when a producer writes the same name twice.
		if _, ok := files[f.Name]; !ok {
			files[f.Name] = f
		}
	}

	if limit <= 0 {
		limit = DefaultMaxMemberBytes
	}
	return &archive{files: files, limit: limit}, nil
}

// lookup returns the member stored under exactly name.
func (a *archive) lookup(name string) (*zip.File, bool) {
	f, ok := a.files[name]
	return f, ok
}

// read returns the member's decompressed contents. A missing member is
// reported as errMissingDescriptor.
func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingDescriptor, name)
	}
	return a.readFile(f)
}

func (a *archive) readFile(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(a.limit) {
		return nil, fmt.Errorf("%w: %s declares %d bytes", errMemberTooLarge, f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, a.limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if int64(len(data)) > a.limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errMemberTooLarge, f.Name, a.limit)
	}
	return data, nil
}
