// Package reader tracks the reading position inside a loaded document and keeps
// the chapter and page cursors consistent with each other.
package reader

import (
	"github.com/metcalfc/epubizon/internal/document"
)

// Reader holds the navigation state for one document.
type Reader struct {
	doc            *document.Document
	CurrentChapter int
	CurrentPage    int
}

// New creates a Reader positioned at the first chapter.
func New(doc *document.Document) *Reader {
	r := &Reader{doc: doc, CurrentPage: 1}
	if len(doc.Chapters) > 0 {
		r.CurrentPage = r.pageForChapter(0)
	}
	return r
}

// Document returns the document being read.
func (r *Reader) Document() *document.Document {
	return r.doc
}

// PageModel reports whether the document has native pages that chapters map onto.
func (r *Reader) PageModel() bool {
	for _, ch := range r.doc.Chapters {
		if ch.HasPages() {
			return true
		}
	}
	return false
}

// Unit returns the renderable unit at the current position: the page number
// for paged documents, the chapter index otherwise.
func (r *Reader) Unit() int {
	if r.PageModel() {
		return r.CurrentPage
	}
	return r.CurrentChapter
}

// GoToChapter moves to chapter i. A chapter with a page range snaps the page
// cursor to its first page.
func (r *Reader) GoToChapter(i int) error {
	if err := r.doc.CheckChapter(i); err != nil {
		return err
	}
	r.CurrentChapter = i
	r.CurrentPage = r.pageForChapter(i)
	return nil
}

// GoToPage moves to page p and selects the chapter containing it.
func (r *Reader) GoToPage(p int) error {
	if err := r.doc.CheckPage(p); err != nil {
		return err
	}
	r.CurrentPage = p
	if i := r.doc.ChapterForPage(p); i >= 0 {
		r.CurrentChapter = i
	}
	return nil
}

// NextPage advances one page. Documents without native pages advance one
// chapter instead. Returns false at the end.
func (r *Reader) NextPage() bool {
	if !r.PageModel() {
		return r.NextChapter()
	}
	if r.CurrentPage >= r.doc.TotalPages {
		return false
	}
	return r.GoToPage(r.CurrentPage+1) == nil
}

// PrevPage steps back one page, or one chapter for unpaged documents.
func (r *Reader) PrevPage() bool {
	if !r.PageModel() {
		return r.PrevChapter()
	}
	if r.CurrentPage <= 1 {
		return false
	}
	return r.GoToPage(r.CurrentPage-1) == nil
}

// NextChapter moves to the following chapter. Returns false at the last one.
func (r *Reader) NextChapter() bool {
	if r.CurrentChapter >= len(r.doc.Chapters)-1 {
		return false
	}
	return r.GoToChapter(r.CurrentChapter+1) == nil
}

// PrevChapter moves to the preceding chapter. Returns false at the first one.
func (r *Reader) PrevChapter() bool {
	if r.CurrentChapter <= 0 {
		return false
	}
	return r.GoToChapter(r.CurrentChapter-1) == nil
}

// Progress returns the current page and the total page count.
func (r *Reader) Progress() (current, total int) {
	return r.CurrentPage, r.doc.TotalPages
}

// CurrentChapterTitle returns the title of the current chapter.
func (r *Reader) CurrentChapterTitle() string {
	if r.CurrentChapter >= 0 && r.CurrentChapter < len(r.doc.Chapters) {
		return r.doc.Chapters[r.CurrentChapter].Title
	}
	return ""
}

// AtStart reports whether no earlier unit exists.
func (r *Reader) AtStart() bool {
	if r.PageModel() {
		return r.CurrentPage <= 1
	}
	return r.CurrentChapter <= 0
}

// AtEnd reports whether no later unit exists.
func (r *Reader) AtEnd() bool {
	if r.PageModel() {
		return r.CurrentPage >= r.doc.TotalPages
	}
	return r.CurrentChapter >= len(r.doc.Chapters)-1
}

func (r *Reader) pageForChapter(i int) int {
	ch := r.doc.Chapters[i]
	if ch.HasPages() {
		return ch.PageStart
	}
	return document.EstimatedPage(i, len(r.doc.Chapters), r.doc.TotalPages)
}
