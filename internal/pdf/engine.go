package pdf

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Engine opens PDF bytes. The adapter talks to the rendering libraries only
// through this boundary, so tests can substitute a fake.
type Engine interface {
	Open(ctx context.Context, data []byte) (Source, error)
}

// Source is one opened PDF.
type Source interface {
	PageCount() int
	// Info returns the document information dictionary.
	Info() map[string]string
	// PageSize returns the page's viewport in points.
	PageSize(page int) (width, height float64, err error)
	// TextRuns returns the positioned text of page in reading order.
	TextRuns(ctx context.Context, page int) ([]TextRun, error)
	Close() error
}

// TextRun is a piece of text drawn at one position. Coordinates are in points
// with the origin at the bottom left of the page.
type TextRun struct {
	X, Y     float64
	FontSize float64
	Text     string
}

// LibraryEngine reads structure and page geometry with pdfcpu and text
// with ledongthuc/pdf.
type LibraryEngine struct{}

func (LibraryEngine) Open(ctx context.Context, data []byte) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pc, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if pc.PageCount < 1 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	src := &librarySource{pages: pc.PageCount, info: make(map[string]string)}
	if dims, err := pc.PageDims(); err == nil {
		for _, d := range dims {
			src.dims = append(src.dims, [2]float64{d.Width, d.Height})
		}
	}
	for k, v := range map[string]string{
		"title":         pc.Title,
		"creator":       pc.Author,
		"subject":       pc.Subject,
		"producer":      pc.Producer,
		"creation_date": pc.XRefTable.CreationDate,
	} {
		if v = strings.TrimSpace(v); v != "" {
			src.info[k] = v
		}
	}

	r, err := openText(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf text: %w", err)
	}
	src.text = r
	return src, nil
}

type librarySource struct {
	pages int
	dims  [][2]float64
	info  map[string]string
	text  *lpdf.Reader
}

func (s *librarySource) PageCount() int          { return s.pages }
func (s *librarySource) Info() map[string]string { return s.info }

func (s *librarySource) PageSize(page int) (float64, float64, error) {
	if page < 1 || page > s.pages {
		return 0, 0, fmt.Errorf("page %d of %d", page, s.pages)
	}
	if page <= len(s.dims) && s.dims[page-1][0] > 0 {
		return s.dims[page-1][0], s.dims[page-1][1], nil
	}
	return LetterWidth, LetterHeight, nil
}

func (s *librarySource) TextRuns(ctx context.Context, page int) (runs []TextRun, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > s.text.NumPage() {
		return nil, fmt.Errorf("page %d of %d", page, s.text.NumPage())
	}
	// ledongthuc/pdf panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", page, r)
		}
	}()
	p := s.text.Page(page)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d: missing page object", page)
	}
	return groupGlyphs(p.Content().Text), nil
}

func (s *librarySource) Close() error {
	s.text = nil
	return nil
}

func openText(data []byte) (r *lpdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// groupGlyphs merges the per-glyph text items ledongthuc/pdf reports into
// runs, keeping content stream order. A new run starts on a line change or a
// horizontal gap wider than a quarter of the font size.
func groupGlyphs(glyphs []lpdf.Text) []TextRun {
	if len(glyphs) == 0 {
		return nil
	}
	var runs []TextRun
	var b strings.Builder
	cur := TextRun{}
	lastEnd := 0.0
	flush := func() {
		if b.Len() > 0 {
			cur.Text = b.String()
			runs = append(runs, cur)
		}
		b.Reset()
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		newLine := b.Len() == 0 || math.Abs(g.Y-cur.Y) > size/2
		gap := g.X - lastEnd
		if newLine || gap > size/4 {
			flush()
			cur = TextRun{X: g.X, Y: g.Y, FontSize: size}
		}
		b.WriteString(g.S)
		lastEnd = g.X + g.W
	}
	flush()
	return runs
}
