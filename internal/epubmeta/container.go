package epubmeta

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// packagePath returns the full-path of the first rootfile declared in
// container.xml.
func packagePath(container []byte) (string, error) {
	dec := newDecoder(container)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: container.xml has no rootfile full-path", errMalformedMarkup)
			}
			return "", fmt.Errorf("%w: container.xml: %v", errMalformedMarkup, err)
		}

		el, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(el.Name.Local, "rootfile") {
			continue
		}
		if p, ok := attr(el, "full-path"); ok {
			if p = strings.TrimSpace(p); p != "" {
				return p, nil
			}
		}
	}
}

// baseDir returns everything up to and including the last '/' of p, or ""
// when p sits at the archive root.
func baseDir(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i+1]
}
