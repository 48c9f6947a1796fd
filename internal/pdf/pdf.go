// Package pdf is the PDF document adapter. Pages are the native unit;
// chapters are synthesized as contiguous page ranges.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/metcalfc/epubizon/internal/document"
)

var signature = []byte("%PDF-")

// sniffWindow is how far into the file the header may start.
const sniffWindow = 1024

// Format registers the adapter for .pdf files.
func Format(logger *slog.Logger) document.Format {
	return document.Format{
		Name:       "PDF",
		Extensions: []string{".pdf"},
		New:        func() document.Handler { return New(WithLogger(logger)) },
	}
}

// Sniff reports whether data carries a PDF header in its first kilobyte.
func Sniff(data []byte) bool {
	return bytes.Contains(data[:min(len(data), sniffWindow)], signature)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithEngine replaces the rendering engine.
func WithEngine(e Engine) Option {
	return func(a *Adapter) { a.engine = e }
}

// Adapter implements document.Handler for PDF.
type Adapter struct {
	log    *slog.Logger
	engine Engine

	mu     sync.Mutex
	src    Source
	doc    *document.Document
	text   *document.Cache[int, string]
	width  float64
	height float64
}

// New creates an adapter backed by LibraryEngine unless WithEngine says otherwise.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		log:    slog.New(slog.DiscardHandler),
		engine: LibraryEngine{},
		text:   document.NewCache[int, string](),
		width:  LetterWidth,
		height: LetterHeight,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() document.Kind { return document.KindPDF }

// Load opens a PDF. Bytes without a PDF header are rejected. A PDF the
// engine cannot open yields the 45-page placeholder document.
func (a *Adapter) Load(ctx context.Context, data []byte) (*document.Document, error) {
	if !Sniff(data) {
		return nil, fmt.Errorf("pdf: missing %%PDF- header: %w", document.ErrUnsupportedFormat)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()

	src, err := a.engine.Open(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warn("pdf load failed, using placeholder document", "error", err)
		a.doc = fallbackDocument(fmt.Errorf("%w: %w", document.ErrLoadFailure, err))
		return a.doc, nil
	}

	total := src.PageCount()
	chapters := SyntheticChapters(total)
	a.src = src
	a.doc = &document.Document{
		Kind:        document.KindPDF,
		Chapters:    chapters,
		TotalPages:  total,
		Metadata:    defaultMetadata(src.Info()),
		IsLargeFile: len(chapters) > 50 || total > 500,
		Mode:        document.Real,
	}
	a.log.Debug("pdf loaded", "pages", total, "chapters", len(chapters))
	return a.doc, nil
}

// Render rasterizes page at RenderScale. A page that fails to render comes
// back as a degraded placeholder bitmap.
func (a *Adapter) Render(ctx context.Context, page int) (*document.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkPage(page); err != nil {
		return nil, err
	}

	content := &document.Content{Kind: document.Bitmap, Index: page, Title: a.pageTitle(page), Mode: a.doc.Mode, Cause: a.doc.Cause}
	if a.src == nil {
		content.Image = placeholder(fmt.Sprintf("Page %d", page), a.width, a.height, RenderScale)
		content.Width, content.Height = a.width, a.height
		return content, nil
	}

	w, h, err := a.src.PageSize(page)
	var runs []TextRun
	if err == nil {
		runs, err = a.src.TextRuns(ctx, page)
	}
	if err != nil {
		a.log.Warn("page render failed", "page", page, "error", err)
		content.Image = placeholder(fmt.Sprintf("Page %d could not be rendered", page), a.width, a.height, RenderScale)
		content.Width, content.Height = a.width, a.height
		content.Mode = document.Degraded
		content.Cause = fmt.Errorf("%w: %w", document.ErrRenderFailure, err)
		return content, nil
	}

	a.width, a.height = w, h
	content.Image = rasterize(runs, w, h, RenderScale)
	content.Width, content.Height = w, h
	return content, nil
}

// Text returns the normalized text of page.
func (a *Adapter) Text(ctx context.Context, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	text, err := a.pageText(ctx, page)
	if errors.Is(err, document.ErrRenderFailure) {
		a.log.Warn("page text failed, using placeholder", "page", page, "error", err)
		return unreadablePage(page), nil
	}
	return text, err
}

// Search scans every page's text for query and maps hits to their chapter.
func (a *Adapter) Search(ctx context.Context, query string) ([]document.SearchHit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc == nil || query == "" {
		return nil, nil
	}

	var hits []document.SearchHit
	for p := 1; p <= a.doc.TotalPages; p++ {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		text, err := a.pageText(ctx, p)
		if err != nil {
			a.log.Debug("search skipped page", "page", p, "error", err)
			continue
		}
		excerpt, ok := document.Excerpt(text, query, document.ExcerptContext)
		if !ok {
			continue
		}
		hit := document.SearchHit{Unit: p, Page: p, ChapterIndex: a.doc.ChapterForPage(p), Excerpt: excerpt}
		if hit.ChapterIndex >= 0 {
			hit.ChapterTitle = a.doc.Chapters[hit.ChapterIndex].Title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Destroy clears the text cache and closes the engine source. It is safe to
// call more than once.
func (a *Adapter) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reset()
}

// PageSize returns the viewport of the most recently rendered page, or
// US-Letter before the first render.
func (a *Adapter) PageSize() (width, height float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.width, a.height
}

func (a *Adapter) reset() error {
	a.text.Clear()
	a.doc = nil
	a.width, a.height = LetterWidth, LetterHeight
	if a.src == nil {
		return nil
	}
	err := a.src.Close()
	a.src = nil
	return err
}

func (a *Adapter) checkPage(page int) error {
	if a.doc == nil {
		return fmt.Errorf("pdf: page %d: no document: %w", page, document.ErrOutOfRange)
	}
	return a.doc.CheckPage(page)
}

func (a *Adapter) pageTitle(page int) string {
	if i := a.doc.ChapterForPage(page); i >= 0 {
		return a.doc.Chapters[i].Title
	}
	return ""
}

func (a *Adapter) pageText(ctx context.Context, page int) (string, error) {
	if err := a.checkPage(page); err != nil {
		return "", err
	}
	return a.text.GetOrCompute(page, func() (string, error) {
		if a.src == nil {
			return unreadablePage(page), nil
		}
		runs, err := a.src.TextRuns(ctx, page)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", document.ErrRenderFailure, page, err)
		}
		return NormalizeText(runs), nil
	})
}

func unreadablePage(page int) string {
	return fmt.Sprintf("Page %d of this document could not be read.", page)
}

// NormalizeText joins runs, collapses whitespace and shrinks runs of four or
// more repeated characters.
func NormalizeText(runs []TextRun) string {
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		parts = append(parts, r.Text)
	}
	return document.CollapseRepeats(document.CollapseWhitespace(strings.Join(parts, " ")))
}
