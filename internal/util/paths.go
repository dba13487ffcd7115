package util

import (
	"fmt"
	"path"
	"strings"
)

// BookDir returns the storage prefix holding everything for a book
func BookDir(bookID string) string {
	return path.Join("books", bookID) + "/"
}

// BookMetadataPath returns the storage path for a book's metadata document
func BookMetadataPath(bookID string) string {
	return path.Join("books", bookID, "metadata.json")
}

// RawFilePath returns the storage path for the uploaded book file
func RawFilePath(bookID, format string) string {
	return path.Join("books", bookID, fmt.Sprintf("raw.%s", format))
}

// CoverPath returns the storage path for an extracted cover with the given extension
func CoverPath(bookID, ext string) string {
	return path.Join("books", bookID, "cover."+strings.TrimPrefix(ext, "."))
}

// ThumbnailPath returns the storage path for the cover thumbnail
func ThumbnailPath(bookID string) string {
	return path.Join("books", bookID, "cover-thumb.jpg")
}

// BookmarkDir returns the storage prefix for a book's bookmarks
func BookmarkDir(bookID string) string {
	return path.Join("books", bookID, "bookmarks") + "/"
}

// BookmarkPath returns the storage path for a single bookmark
func BookmarkPath(bookID, bookmarkID string) string {
	return path.Join("books", bookID, "bookmarks", bookmarkID+".json")
}

// HighlightDir returns the storage prefix for a book's highlights
func HighlightDir(bookID string) string {
	return path.Join("books", bookID, "highlights") + "/"
}

// HighlightPath returns the storage path for a single highlight
func HighlightPath(bookID, highlightID string) string {
	return path.Join("books", bookID, "highlights", highlightID+".json")
}

// ProgressPath returns the storage path for a book's reading progress
func ProgressPath(bookID string) string {
	return path.Join("books", bookID, "progress.json")
}

// ShareDir returns the storage prefix holding every share
func ShareDir() string {
	return "shares/"
}

// SharePath returns the storage path for a share document
func SharePath(code string) string {
	return path.Join("shares", code+".json")
}

// SettingsPath returns the storage path for the reader settings document
func SettingsPath() string {
	return "settings.json"
}

// CoverExtension maps a cover MIME type to the file extension it is stored under
func CoverExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}

// CoverMIMEType is the inverse of CoverExtension for stored cover paths
func CoverMIMEType(p string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
