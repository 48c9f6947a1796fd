package session

import (
	"context"
	"strings"

	"github.com/metcalfc/epubizon/internal/document"
	"github.com/metcalfc/epubizon/internal/epub"
	"github.com/metcalfc/epubizon/internal/pager"
	"github.com/metcalfc/epubizon/internal/reader"
	"github.com/metcalfc/epubizon/internal/summary"
)

// Location is the current reading position.
type Location struct {
	Chapter      int    `json:"chapter" yaml:"chapter"`
	ChapterTitle string `json:"chapter_title" yaml:"chapter_title"`
	Page         int    `json:"page" yaml:"page"`
	TotalPages   int    `json:"total_pages" yaml:"total_pages"`
	// Unit is what Render and Text address: a chapter index for EPUB, a
	// page number for PDF.
	Unit    int  `json:"unit" yaml:"unit"`
	AtStart bool `json:"at_start" yaml:"at_start"`
	AtEnd   bool `json:"at_end" yaml:"at_end"`
}

func locationOf(rd *reader.Reader) Location {
	current, total := rd.Progress()
	return Location{
		Chapter:      rd.CurrentChapter,
		ChapterTitle: rd.CurrentChapterTitle(),
		Page:         current,
		TotalPages:   total,
		Unit:         rd.Unit(),
		AtStart:      rd.AtStart(),
		AtEnd:        rd.AtEnd(),
	}
}

// Location returns the current position.
func (s *Session) Location() (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Location{}, err
	}
	return locationOf(s.rd), nil
}

// move applies step to the reader, re-centers the chapter window and saves
// the position.
func (s *Session) move(step func(*reader.Reader) error) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Location{}, err
	}
	if err := step(s.rd); err != nil {
		return locationOf(s.rd), err
	}
	s.pager.Focus(s.rd.CurrentChapter)
	s.savePositionLocked()
	return locationOf(s.rd), nil
}

func stepper(fn func(*reader.Reader) bool) func(*reader.Reader) error {
	return func(rd *reader.Reader) error {
		fn(rd)
		return nil
	}
}

// NextPage advances one page, or one chapter in unpaged documents.
func (s *Session) NextPage() (Location, error) {
	return s.move(stepper((*reader.Reader).NextPage))
}

// PrevPage steps back one page, or one chapter in unpaged documents.
func (s *Session) PrevPage() (Location, error) {
	return s.move(stepper((*reader.Reader).PrevPage))
}

// NextChapter moves to the following chapter.
func (s *Session) NextChapter() (Location, error) {
	return s.move(stepper((*reader.Reader).NextChapter))
}

// PrevChapter moves to the preceding chapter.
func (s *Session) PrevChapter() (Location, error) {
	return s.move(stepper((*reader.Reader).PrevChapter))
}

// GoToChapter jumps to chapter i.
func (s *Session) GoToChapter(i int) (Location, error) {
	return s.move(func(rd *reader.Reader) error { return rd.GoToChapter(i) })
}

// GoToPage jumps to page p.
func (s *Session) GoToPage(p int) (Location, error) {
	return s.move(func(rd *reader.Reader) error { return rd.GoToPage(p) })
}

// snapshot captures the handler and generation for work done outside the
// lock.
func (s *Session) snapshot() (document.Handler, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, 0, err
	}
	return s.handler, s.gen, nil
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Session) currentUnit() (document.Handler, int, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, 0, 0, err
	}
	return s.handler, s.rd.Unit(), s.gen, nil
}

// Render renders the current unit.
func (s *Session) Render(ctx context.Context) (*document.Content, error) {
	h, unit, gen, err := s.currentUnit()
	if err != nil {
		return nil, err
	}
	return s.render(ctx, h, unit, gen)
}

// RenderUnit renders a specific unit without moving.
func (s *Session) RenderUnit(ctx context.Context, unit int) (*document.Content, error) {
	h, gen, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return s.render(ctx, h, unit, gen)
}

func (s *Session) render(ctx context.Context, h document.Handler, unit int, gen uint64) (*document.Content, error) {
	c, err := h.Render(ctx, unit)
	if !s.current(gen) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	if c.Mode == document.Degraded {
		s.log.Warn("unit rendered as placeholder", "unit", unit, "cause", c.Cause)
	}
	return c, nil
}

// Text returns the plain text of the current unit.
func (s *Session) Text(ctx context.Context) (string, error) {
	h, unit, gen, err := s.currentUnit()
	if err != nil {
		return "", err
	}
	return s.text(ctx, h, unit, gen)
}

// UnitText returns the plain text of a specific unit.
func (s *Session) UnitText(ctx context.Context, unit int) (string, error) {
	h, gen, err := s.snapshot()
	if err != nil {
		return "", err
	}
	return s.text(ctx, h, unit, gen)
}

func (s *Session) text(ctx context.Context, h document.Handler, unit int, gen uint64) (string, error) {
	text, err := h.Text(ctx, unit)
	if !s.current(gen) {
		return "", ErrSuperseded
	}
	return text, err
}

// Search scans the whole document for query.
func (s *Session) Search(ctx context.Context, query string) ([]document.SearchHit, error) {
	h, gen, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	hits, err := h.Search(ctx, query)
	if !s.current(gen) {
		return nil, ErrSuperseded
	}
	return hits, err
}

// Window returns the visible chapter window.
func (s *Session) Window() (pager.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return pager.Window{}, err
	}
	return s.pager.Window(), nil
}

// Entries returns the chapter list rows to display.
func (s *Session) Entries() ([]pager.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	return s.pager.Entries(s.rd.CurrentChapter), nil
}

// JumpBackward shows the window before the current one.
func (s *Session) JumpBackward() (pager.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return pager.Window{}, err
	}
	return s.pager.JumpBackward(), nil
}

// JumpForward shows the window after the current one.
func (s *Session) JumpForward() (pager.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return pager.Window{}, err
	}
	return s.pager.JumpForward(), nil
}

// Info describes the open document.
type Info struct {
	Name        string            `json:"name" yaml:"name"`
	Kind        document.Kind     `json:"kind" yaml:"kind"`
	Title       string            `json:"title" yaml:"title"`
	Metadata    document.Metadata `json:"metadata" yaml:"metadata"`
	Chapters    int               `json:"chapters" yaml:"chapters"`
	TotalPages  int               `json:"total_pages" yaml:"total_pages"`
	IsLargeFile bool              `json:"is_large_file" yaml:"is_large_file"`
	Mode        string            `json:"mode" yaml:"mode"`
	Virtualized bool              `json:"virtualized" yaml:"virtualized"`
	ImageCount  int               `json:"image_count,omitempty" yaml:"image_count,omitempty"`
	PageWidth   float64           `json:"page_width,omitempty" yaml:"page_width,omitempty"`
	PageHeight  float64           `json:"page_height,omitempty" yaml:"page_height,omitempty"`
}

// Info returns a description of the open document.
func (s *Session) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Info{}, err
	}
	info := Info{
		Name:        s.name,
		Kind:        s.doc.Kind,
		Title:       s.doc.Title(),
		Metadata:    s.doc.Metadata,
		Chapters:    len(s.doc.Chapters),
		TotalPages:  s.doc.TotalPages,
		IsLargeFile: s.doc.IsLargeFile,
		Mode:        s.doc.Mode.String(),
		Virtualized: s.pager.Virtualized(),
	}
	if ic, ok := s.handler.(interface{ ImageCount() int }); ok {
		info.ImageCount = ic.ImageCount()
	}
	if ps, ok := s.handler.(interface{ PageSize() (float64, float64) }); ok {
		info.PageWidth, info.PageHeight = ps.PageSize()
	}
	return info, nil
}

// Resource returns the image behind a blob handle from rendered markup.
func (s *Session) Resource(handle string) (epub.Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.handler.(interface {
		Resource(string) (epub.Blob, bool)
	})
	if !ok {
		return epub.Blob{}, false
	}
	return r.Resource(handle)
}

// Summarize asks for a summary of the current unit. It needs a ready
// document and a configured API key.
func (s *Session) Summarize(ctx context.Context) (string, error) {
	h, unit, gen, err := s.currentUnit()
	if err != nil {
		return "", err
	}
	if s.settings == nil {
		return "", ErrMissingAPIKey
	}
	cfg := s.settings.Get()
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return "", ErrMissingAPIKey
	}

	text, err := s.text(ctx, h, unit, gen)
	if err != nil {
		return "", err
	}
	resp := s.summarizer.Summarize(ctx, summary.Request{
		Text:     text,
		APIKey:   cfg.OpenAIAPIKey,
		Language: cfg.SummaryLanguage,
		Model:    cfg.SummaryModel,
	})
	if !s.current(gen) {
		return "", ErrSuperseded
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return resp.Summary, nil
}
