package epubmeta

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"testing"
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// buildEPUB writes files (archive path -> content) into an in-memory ZIP and
// returns its bytes. Entries are written in sorted order so the output is
// stable across runs.
func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildEPUB: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("buildEPUB: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildEPUB: close: %v", err)
	}
	return buf.Bytes()
}

// opfDocument wraps metadata and manifest fragments in a package document.
func opfDocument(metadata, manifest string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
` + metadata + `
  </metadata>
  <manifest>
` + manifest + `
  </manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`
}
