// Package epub is the EPUB document adapter. It enumerates chapters from the
// table of contents or the spine, estimates a page count, renders chapter
// markup with images resolved to in-memory handles, and extracts chapter text.
package epub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	"golang.org/x/net/html"

	"github.com/metcalfc/epubizon/internal/document"
)

// signature is the local file header every zip archive starts with.
var signature = []byte("PK\x03\x04")

// Format registers the adapter for .epub files.
func Format(logger *slog.Logger) document.Format {
	return document.Format{
		Name:       "EPUB",
		Extensions: []string{".epub"},
		New:        func() document.Handler { return New(WithLogger(logger)) },
	}
}

// Sniff reports whether data looks like an EPUB container.
func Sniff(data []byte) bool {
	return bytes.HasPrefix(data, signature)
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

// Adapter implements document.Handler for EPUB.
type Adapter struct {
	log *slog.Logger

	mu     sync.Mutex
	c      *container
	doc    *document.Document
	text   *document.Cache[int, string]
	markup *document.Cache[int, string]
	res    *Resources
}

// New creates an adapter with nothing loaded.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		log:    slog.New(slog.DiscardHandler),
		text:   document.NewCache[int, string](),
		markup: document.NewCache[int, string](),
		res:    NewResources(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() document.Kind { return document.KindEPUB }

// Load parses an EPUB. Bytes that are not a zip archive are rejected. An
// archive that cannot be read as an EPUB yields the degraded document.
func (a *Adapter) Load(ctx context.Context, data []byte) (*document.Document, error) {
	if !Sniff(data) {
		return nil, fmt.Errorf("epub: missing zip signature: %w", document.ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()

	c, err := openContainer(data)
	if err == nil && len(c.spine) == 0 {
		err = fmt.Errorf("empty spine")
	}
	if err != nil {
		cause := fmt.Errorf("%w: %w", document.ErrLoadFailure, err)
		a.log.Warn("epub load failed, using placeholder document", "error", err)
		a.doc = degradedDocument(cause)
		return a.doc, nil
	}

	chapters := chaptersFromTOC(c.readTOC())
	if len(chapters) == 0 {
		chapters = c.spineChapters()
		if len(c.spine) > MaxSpineChapters {
			a.log.Info("spine truncated", "spine", len(c.spine), "listed", MaxSpineChapters)
		}
	}

	total := EstimatePages(len(chapters))
	a.c = c
	a.doc = &document.Document{
		Kind:        document.KindEPUB,
		Chapters:    chapters,
		TotalPages:  total,
		Metadata:    c.metadata(),
		IsLargeFile: IsLarge(len(chapters), total),
		Mode:        document.Real,
	}
	a.log.Debug("epub loaded", "chapters", len(chapters), "pages", total, "large", a.doc.IsLargeFile)
	return a.doc, nil
}

// Render returns chapter index as sanitized markup. A chapter that cannot be
// rendered comes back as degraded placeholder markup.
func (a *Adapter) Render(ctx context.Context, index int) (*document.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, err := a.chapter(index)
	if err != nil {
		return nil, err
	}

	content := &document.Content{Kind: document.Markup, Index: index, Title: ch.Title, Mode: a.doc.Mode, Cause: a.doc.Cause}
	if a.c == nil {
		content.Markup = placeholderMarkup(ch.Title)
		return content, nil
	}

	markup, err := a.markup.GetOrCompute(index, func() (string, error) {
		return a.renderChapter(index)
	})
	if err != nil {
		a.log.Warn("chapter render failed", "chapter", index, "error", err)
		a.doc.Chapters[index].State = document.Failed
		content.Markup = placeholderMarkup(ch.Title)
		content.Mode = document.Degraded
		content.Cause = fmt.Errorf("%w: %w", document.ErrRenderFailure, err)
		return content, nil
	}
	a.doc.Chapters[index].State = document.Loaded
	content.Markup = markup
	return content, nil
}

// Text returns the plain text of chapter index, prefixed with its title.
func (a *Adapter) Text(ctx context.Context, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	text, err := a.chapterText(index)
	if errors.Is(err, document.ErrRenderFailure) {
		a.log.Warn("chapter text failed, using placeholder", "chapter", index, "error", err)
		return placeholderChapterText(a.doc.Chapters[index].Title), nil
	}
	return text, err
}

// Search scans every chapter's text for query.
func (a *Adapter) Search(ctx context.Context, query string) ([]document.SearchHit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc == nil || query == "" {
		return nil, nil
	}

	var hits []document.SearchHit
	for i, ch := range a.doc.Chapters {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		text, err := a.chapterText(i)
		if err != nil {
			continue
		}
		excerpt, ok := document.Excerpt(text, query, document.ExcerptContext)
		if !ok {
			continue
		}
		hits = append(hits, document.SearchHit{
			Unit:         i,
			Page:         document.EstimatedPage(i, len(a.doc.Chapters), a.doc.TotalPages),
			ChapterIndex: i,
			ChapterTitle: ch.Title,
			Excerpt:      excerpt,
		})
	}
	return hits, nil
}

// Destroy clears the caches and releases every image handle. It is safe to
// call more than once.
func (a *Adapter) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}

// Resource returns the image behind a handle produced by Render.
func (a *Adapter) Resource(handle string) (Blob, bool) {
	return a.res.Open(handle)
}

// LiveResources returns the number of image handles not yet released.
func (a *Adapter) LiveResources() int {
	return a.res.Len()
}

// ImageCount returns the number of images declared in the manifest.
func (a *Adapter) ImageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.c == nil {
		return 0
	}
	return a.c.imageCount()
}

func (a *Adapter) reset() {
	a.text.Clear()
	a.markup.Clear()
	if n := a.res.ReleaseAll(); n > 0 {
		a.log.Debug("released image handles", "count", n)
	}
	a.c = nil
	a.doc = nil
}

func (a *Adapter) chapter(index int) (document.Chapter, error) {
	if a.doc == nil {
		return document.Chapter{}, fmt.Errorf("epub: chapter %d: no document: %w", index, document.ErrOutOfRange)
	}
	if err := a.doc.CheckChapter(index); err != nil {
		return document.Chapter{}, err
	}
	return a.doc.Chapters[index], nil
}

func (a *Adapter) chapterText(index int) (string, error) {
	ch, err := a.chapter(index)
	if err != nil {
		return "", err
	}
	return a.text.GetOrCompute(index, func() (string, error) {
		if a.c == nil {
			return placeholderChapterText(ch.Title), nil
		}
		nodes, _, err := a.chapterNodes(index)
		if err != nil {
			return "", fmt.Errorf("%w: %w", document.ErrRenderFailure, err)
		}
		return ch.Title + "\n\n" + document.CollapseWhitespace(nodesText(nodes)), nil
	})
}

// chapterNodes loads and parses the content behind chapter index. It returns
// the nodes to display and the container path they came from.
func (a *Adapter) chapterNodes(index int) ([]*html.Node, string, error) {
	file, anchor := splitHref(a.doc.Chapters[index].Href)
	if !a.c.has(file) && index < len(a.c.spine) {
		a.log.Debug("chapter href unresolved, using spine item", "chapter", index, "href", file)
		file, anchor = a.c.spine[index], ""
	}
	data, err := a.c.read(file)
	if err != nil {
		return nil, "", err
	}
	doc, err := parseChapter(data)
	if err != nil {
		return nil, "", err
	}
	return bodyNodes(doc, anchor), file, nil
}

func (a *Adapter) renderChapter(index int) (string, error) {
	nodes, file, err := a.chapterNodes(index)
	if err != nil {
		return "", err
	}
	dir := path.Dir(file)
	for _, ref := range imageRefs(nodes) {
		src := ref.node.Attr[ref.idx].Val
		if isInline(src) {
			continue
		}
		handle, ok := a.loadImage(src, dir)
		if !ok {
			a.log.Debug("image unresolved", "chapter", index, "src", src)
			continue
		}
		ref.node.Attr[ref.idx].Val = handle
	}
	return renderNodes(nodes)
}

// loadImage resolves src and returns a data URI for SVG or a blob handle for
// anything else.
func (a *Adapter) loadImage(src, dir string) (string, bool) {
	p, ok := a.c.resolveImage(src, dir)
	if !ok {
		return "", false
	}
	f, err := a.c.files[p].Open()
	if err != nil {
		return "", false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", false
	}
	mt := a.c.mediaType(p)
	if mt == "image/svg+xml" {
		return DataURI(mt, data), true
	}
	return a.res.Add(p, mt, data), true
}
