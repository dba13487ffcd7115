package types

import "time"

// Book formats accepted for upload
const (
	FormatEPUB = "epub"
	FormatPDF  = "pdf"
	FormatMOBI = "mobi"
)

// Book represents an uploaded book in the library
type Book struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Author           string    `json:"author,omitempty"`
	FileType         string    `json:"file_type"` // "epub", "pdf", "mobi"
	FileSize         int64     `json:"file_size"`
	FileURL          string    `json:"file_url"`
	OriginalFilename string    `json:"original_filename"`
	CoverURL         string    `json:"cover_url,omitempty"`
	CoverType        string    `json:"cover_type,omitempty"` // MIME type of the stored cover
	ThumbnailURL     string    `json:"thumbnail_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BookPatch carries the user-editable fields of a book
type BookPatch struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
}

// Bookmark marks a location in a book
type Bookmark struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Location  string    `json:"location"` // CFI or page reference
	Page      *int      `json:"page,omitempty"`
	Title     string    `json:"title,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Highlight is a highlighted passage with an optional note
type Highlight struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	CFIRange  string    `json:"cfi_range"`
	Text      string    `json:"text"`
	Color     string    `json:"color"`
	Note      string    `json:"note,omitempty"`
	Page      *int      `json:"page,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReadingProgress records where the reader left off in a book
type ReadingProgress struct {
	BookID             string    `json:"book_id"`
	CurrentLocation    string    `json:"current_location"`
	CurrentPage        *int      `json:"current_page,omitempty"`
	ProgressPercentage float64   `json:"progress_percentage"` // 0-100
	LastReadAt         time.Time `json:"last_read_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Share is a public link to a book, identified by its code
type Share struct {
	Code              string    `json:"share_code"`
	BookID            string    `json:"book_id"`
	IncludeBookmarks  bool      `json:"include_bookmarks"`
	IncludeHighlights bool      `json:"include_highlights"`
	IncludeNotes      bool      `json:"include_notes"`
	IsActive          bool      `json:"is_active"`
	ViewCount         int       `json:"view_count"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ReaderSettings holds display preferences shared across devices
type ReaderSettings struct {
	Theme      string    `json:"theme"` // "light", "dark", "sepia"
	FontFamily string    `json:"font_family"`
	FontSize   int       `json:"font_size"`
	LineHeight float64   `json:"line_height"`
	Margins    int       `json:"margins"`
	TextAlign  string    `json:"text_align"` // "left" or "justify"
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// DefaultReaderSettings returns the settings used before a reader saves any
func DefaultReaderSettings() ReaderSettings {
	return ReaderSettings{
		Theme:      "light",
		FontFamily: "Georgia",
		FontSize:   18,
		LineHeight: 1.8,
		Margins:    40,
		TextAlign:  "left",
	}
}

// Inspection is what a format parser could learn about an uploaded file
type Inspection struct {
	Title  string      `json:"title,omitempty"`
	Author string      `json:"author,omitempty"`
	Cover  *CoverImage `json:"cover,omitempty"`
}

// CoverImage is a cover pulled out of a book file
type CoverImage struct {
	Data       []byte `json:"-"`
	MIMEType   string `json:"mime_type"`
	SourcePath string `json:"source_path,omitempty"` // path inside the book archive
	Method     string `json:"method,omitempty"`      // detection heuristic
	Size       int    `json:"size"`
}
