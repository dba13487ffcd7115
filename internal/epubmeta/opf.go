package epubmeta

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// dcNamespaceBase prefixes every Dublin Core elements namespace (1.0, 1.1,
// with or without the trailing slash).
const dcNamespaceBase = "http://purl.org/dc/elements/"

// manifestItem is one <item> of the package manifest.
type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// metaTag is an EPUB 2 style <meta name="..." content="..."/>.
type metaTag struct {
	Name    string
	Content string
}

// packageDocument holds the parts of the OPF the extractor cares about, in
// document order.
type packageDocument struct {
	Title   string
	Creator string
	Metas   []metaTag
	Items   []manifestItem
}

// parsePackage scans an OPF document. On a markup error it returns whatever
// was collected before the error together with the error, so callers can
// decide whether a partial result is usable.
//
// The scan uses raw tokens so element names keep their source prefix:
// Dublin Core fields are matched on the "dc" prefix, or on any prefix the
// document binds to a Dublin Core namespace.
func parsePackage(data []byte) (*packageDocument, error) {
	doc := &packageDocument{}
	dec := newDecoder(data)
	dcPrefixes := map[string]bool{"dc": true}

	var titleSeen, creatorSeen bool
	for {
		tok, err := dec.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return doc, nil
			}
			return doc, fmt.Errorf("%w: package document: %v", errMalformedMarkup, err)
		}

		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		bindDublinCore(el, dcPrefixes)

		switch {
		case strings.EqualFold(el.Name.Local, "item"):
			doc.Items = append(doc.Items, newManifestItem(el))
		case strings.EqualFold(el.Name.Local, "meta"):
			name, _ := attr(el, "name")
			content, _ := attr(el, "content")
			doc.Metas = append(doc.Metas, metaTag{Name: name, Content: content})
		case isDublinCore(el.Name, "title", dcPrefixes) && !titleSeen:
			titleSeen = true
			text, err := innerText(dec)
			if err != nil {
				return doc, err
			}
			doc.Title = text
		case isDublinCore(el.Name, "creator", dcPrefixes) && !creatorSeen:
			creatorSeen = true
			text, err := innerText(dec)
			if err != nil {
				return doc, err
			}
			doc.Creator = text
		}
	}
}

func newManifestItem(el xml.StartElement) manifestItem {
	var item manifestItem
	item.ID, _ = attr(el, "id")
	item.Href, _ = attr(el, "href")
	item.MediaType, _ = attr(el, "media-type")
	item.Properties, _ = attr(el, "properties")
	return item
}

// bindDublinCore records every xmlns:<prefix> declaration on el that points
// at a Dublin Core namespace.
func bindDublinCore(el xml.StartElement, prefixes map[string]bool) {
	for _, a := range el.Attr {
		if a.Name.Space == "xmlns" && strings.HasPrefix(strings.TrimSpace(a.Value), dcNamespaceBase) {
			prefixes[strings.ToLower(a.Name.Local)] = true
		}
	}
}

// isDublinCore reports whether a raw element name is <prefix>:<local> with a
// Dublin Core prefix. Both parts compare case-insensitively.
func isDublinCore(name xml.Name, local string, prefixes map[string]bool) bool {
	if name.Space == "" || !strings.EqualFold(name.Local, local) {
		return false
	}
	return prefixes[strings.ToLower(name.Space)]
}

// innerText consumes tokens up to the end of the current element and returns
// its character data, trimmed.
func innerText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.RawToken()
		if err != nil {
			return "", fmt.Errorf("%w: unterminated element: %v", errMalformedMarkup, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
