package epubmeta

import (
	"path"
	"slices"
	"strings"
)

// Method names the heuristic that located a cover.
type Method string

// Cover heuristics, in precedence order.
const (
	MethodMetaCover     Method = "meta-cover"
	MethodCoverProperty Method = "cover-image-property"
	MethodCoverID       Method = "cover-id"
	MethodCoverHref     Method = "cover-href"
)

// Cover is an extracted cover image.
type Cover struct {
	Data     []byte
	MIMEType string
	// Path is the archive member the image was read from.
	Path   string
	Method Method
}

// coverExtensions are the image extensions accepted by the href heuristic.
var coverExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// resolveCoverHref runs the cover heuristics in order and returns the href of
// the first match. Later heuristics are fallbacks only.
func (d *packageDocument) resolveCoverHref() (string, Method, bool) {
	if href, ok := d.coverFromMeta(); ok {
		return href, MethodMetaCover, true
	}
	if href, ok := d.coverFromProperties(); ok {
		return href, MethodCoverProperty, true
	}
	if href, ok := d.coverFromID(); ok {
		return href, MethodCoverID, true
	}
	if href, ok := d.coverFromHref(); ok {
		return href, MethodCoverHref, true
	}
	return "", "", false
}

// coverFromMeta follows the first <meta name="cover"> to the manifest item
// with the referenced id.
func (d *packageDocument) coverFromMeta() (string, bool) {
	for _, m := range d.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		for _, item := range d.Items {
			if item.ID == m.Content && item.Href != "" {
				return item.Href, true
			}
		}
		return "", false
	}
	return "", false
}

func (d *packageDocument) coverFromProperties() (string, bool) {
	for _, item := range d.Items {
		if item.Href == "" {
			continue
		}
		if slices.ContainsFunc(strings.Fields(item.Properties), func(p string) bool {
			return strings.EqualFold(p, "cover-image")
		}) {
			return item.Href, true
		}
	}
	return "", false
}

func (d *packageDocument) coverFromID() (string, bool) {
	for _, item := range d.Items {
		if item.Href == "" {
			continue
		}
		if containsFold(item.ID, "cover") && hasPrefixFold(item.MediaType, "image/") {
			return item.Href, true
		}
	}
	return "", false
}

func (d *packageDocument) coverFromHref() (string, bool) {
	for _, item := range d.Items {
		if !containsFold(item.Href, "cover") {
			continue
		}
		ext := strings.ToLower(path.Ext(item.Href))
		if slices.Contains(coverExtensions, ext) {
			return item.Href, true
		}
	}
	return "", false
}

// resolveHref maps a manifest href to an archive path. Hrefs with a leading
// slash are relative to the archive root; everything else is relative to the
// package document's directory.
func resolveHref(base, href string) string {
	if strings.HasPrefix(href, "/") {
		return href[1:]
	}
	return base + href
}

// mimeTypeFor infers an image MIME type from the extension of href.
// Unknown or missing extensions default to image/jpeg.
func mimeTypeFor(href string) string {
	switch strings.ToLower(path.Ext(href)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
