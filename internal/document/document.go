// Package document defines the normalized model every format adapter produces:
// a Document descriptor with its chapters, the content a unit renders to, and
// the Handler contract the EPUB and PDF adapters implement.
package document

import (
	"fmt"
	"image"
)

// Kind identifies the source format of a document.
type Kind string

const (
	KindEPUB Kind = "epub"
	KindPDF  Kind = "pdf"
)

// Mode records whether a value came from the real library or from the
// placeholder path taken after a library failure.
type Mode int

const (
	Real Mode = iota
	Degraded
)

func (m Mode) String() string {
	if m == Degraded {
		return "degraded"
	}
	return "real"
}

// LoadState tracks lazy content fetching for a chapter.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "not-loaded"
	}
}

// Chapter is one navigable unit of a document.
type Chapter struct {
	Title string
	// Href locates the chapter inside its source. Only the adapter that
	// produced it can interpret it.
	Href string
	// PageStart and PageEnd are 1-based and inclusive. Zero means the chapter
	// has no page range.
	PageStart int
	PageEnd   int
	Level     int
	State     LoadState
}

// HasPages reports whether the chapter occupies a page range.
func (c Chapter) HasPages() bool {
	return c.PageStart > 0
}

// Contains reports whether page falls inside the chapter's range.
func (c Chapter) Contains(page int) bool {
	return c.HasPages() && page >= c.PageStart && page <= c.PageEnd
}

// Metadata is the defaulted title/author/language bag of a document.
type Metadata map[string]string

// Get returns the value for key, or def when the key is missing or empty.
func (m Metadata) Get(key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}

// Document is the normalized result of loading a file.
type Document struct {
	Kind     Kind
	Chapters []Chapter
	// TotalPages is exact for PDF and an advisory estimate for EPUB.
	TotalPages  int
	Metadata    Metadata
	IsLargeFile bool
	Mode        Mode
	// Cause holds the library error that forced a degraded load.
	Cause error
}

// Title returns the document title or a placeholder.
func (d *Document) Title() string {
	return d.Metadata.Get("title", "Untitled")
}

// ChapterForPage returns the index of the chapter whose range holds page, or -1.
func (d *Document) ChapterForPage(page int) int {
	for i, ch := range d.Chapters {
		if ch.Contains(page) {
			return i
		}
	}
	return -1
}

// CheckChapter returns ErrOutOfRange unless index addresses a chapter.
func (d *Document) CheckChapter(index int) error {
	if index < 0 || index >= len(d.Chapters) {
		return fmt.Errorf("chapter %d of %d: %w", index, len(d.Chapters), ErrOutOfRange)
	}
	return nil
}

// CheckPage returns ErrOutOfRange unless page is inside [1, TotalPages].
func (d *Document) CheckPage(page int) error {
	if page < 1 || page > d.TotalPages {
		return fmt.Errorf("page %d of %d: %w", page, d.TotalPages, ErrOutOfRange)
	}
	return nil
}

// EstimatedPage places chapter i of n proportionally inside total pages. The
// result is advisory and always within [1, total].
func EstimatedPage(i, n, total int) int {
	if n <= 0 || total <= 0 {
		return 1
	}
	p := 1 + i*total/n
	return min(max(p, 1), total)
}

// ContentKind says how a rendered unit should be displayed.
type ContentKind int

const (
	Markup ContentKind = iota
	Bitmap
)

// Content is one rendered unit.
type Content struct {
	Kind  ContentKind
	Index int
	Title string
	// Markup is sanitized XHTML body content with image references rewritten
	// to loadable handles.
	Markup string
	// Image is the rasterized page for Bitmap content.
	Image  image.Image
	Width  float64
	Height float64
	Mode   Mode
	Cause  error
}

// SearchHit is one match from a document-wide search.
type SearchHit struct {
	// Unit is the chapter index (EPUB) or page number (PDF) holding the match.
	Unit         int
	Page         int
	ChapterIndex int
	ChapterTitle string
	Excerpt      string
}
