// Package session coordinates one reading session: it picks a format
// adapter for each opened file, owns the loaded document and its
// navigation state, and forwards summary requests for the current unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/metcalfc/epubizon/internal/document"
	"github.com/metcalfc/epubizon/internal/epub"
	"github.com/metcalfc/epubizon/internal/pager"
	"github.com/metcalfc/epubizon/internal/pdf"
	"github.com/metcalfc/epubizon/internal/reader"
	"github.com/metcalfc/epubizon/internal/settings"
	"github.com/metcalfc/epubizon/internal/state"
	"github.com/metcalfc/epubizon/internal/summary"
)

// Status is the session's lifecycle state.
type Status int

const (
	NoDocument Status = iota
	Loading
	Ready
	Error
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "no-document"
	}
}

var (
	// ErrNoDocument means no file has been opened.
	ErrNoDocument = errors.New("no document open")
	// ErrNotReady means a document is loading or failed to open.
	ErrNotReady = errors.New("document not ready")
	// ErrSuperseded means a newer open replaced the document this result
	// belonged to.
	ErrSuperseded = errors.New("superseded by a newer document")
	// ErrMissingAPIKey means summaries need an API key in the settings.
	ErrMissingAPIKey = errors.New("no OpenAI API key configured")
)

// SettingsSource supplies the current settings.
type SettingsSource interface {
	Get() settings.Settings
	AddRecentFile(path string) error
}

// PositionStore remembers where each file was left.
type PositionStore interface {
	GetPosition(hash string) (state.Position, bool)
	SetPosition(hash string, pos state.Position) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRegistry replaces the format registry.
func WithRegistry(r *document.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithSettings sets the settings source.
func WithSettings(src SettingsSource) Option {
	return func(s *Session) { s.settings = src }
}

// WithPositions enables reading-position persistence.
func WithPositions(p PositionStore) Option {
	return func(s *Session) { s.positions = p }
}

// WithSummarizer replaces the summary client.
func WithSummarizer(sum summary.Summarizer) Option {
	return func(s *Session) { s.summarizer = sum }
}

// Session owns the current document. All methods are safe for concurrent
// use. Results computed for a document that was replaced while they ran
// are reported as ErrSuperseded.
type Session struct {
	log        *slog.Logger
	registry   *document.Registry
	settings   SettingsSource
	positions  PositionStore
	summarizer summary.Summarizer

	mu      sync.Mutex
	status  Status
	err     error
	gen     uint64
	name    string
	hash    string
	handler document.Handler
	doc     *document.Document
	rd      *reader.Reader
	pager   *pager.Controller
}

// New creates a session that reads EPUB and PDF files.
func New(opts ...Option) *Session {
	s := &Session{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = document.NewRegistry(epub.Format(s.log), pdf.Format(s.log))
	}
	if s.summarizer == nil {
		s.summarizer = summary.New(summary.WithLogger(s.log))
	}
	return s
}

// Status returns the lifecycle state and, in Error, the reason.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// Document returns the loaded document, or nil.
func (s *Session) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Name returns the name of the open file.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// OpenFile reads path and opens it. The path is added to the recent files.
func (s *Session) OpenFile(ctx context.Context, path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := s.Open(ctx, path, data)
	if err != nil {
		return nil, err
	}
	if s.settings != nil {
		if err := s.settings.AddRecentFile(path); err != nil {
			s.log.Warn("failed to update recent files", "path", path, "error", err)
		}
	}
	return doc, nil
}

// Open replaces the current document with data, choosing the adapter by
// the extension of name. The previous adapter is torn down first.
func (s *Session) Open(ctx context.Context, name string, data []byte) (*document.Document, error) {
	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.name = name
	s.status = Loading
	h, err := s.registry.HandlerFor(name)
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	start := time.Now()
	doc, err := h.Load(ctx, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.log.Debug("discarding stale load", "name", name)
		h.Destroy()
		return nil, ErrSuperseded
	}
	if err != nil {
		h.Destroy()
		s.failLocked(err)
		return nil, err
	}
	if doc.Mode == document.Degraded {
		s.log.Warn("document loaded in degraded mode", "name", name, "cause", doc.Cause)
	}

	s.handler = h
	s.doc = doc
	s.rd = reader.New(doc)
	s.pager = pager.New(doc)
	s.hash = state.ComputeHash(data)
	s.status = Ready
	s.err = nil
	s.restoreLocked()
	s.pager.Focus(s.rd.CurrentChapter)

	s.log.Info("document opened", "name", name, "kind", doc.Kind, "chapters", len(doc.Chapters),
		"pages", doc.TotalPages, "mode", doc.Mode, "took", time.Since(start))
	return doc, nil
}

// Close saves the position and tears the document down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	err := s.teardownLocked()
	s.status = NoDocument
	s.err = nil
	s.name = ""
	return err
}

func (s *Session) failLocked(err error) {
	s.status = Error
	s.err = err
	s.log.Warn("failed to open document", "name", s.name, "error", err)
}

func (s *Session) teardownLocked() error {
	if s.handler == nil {
		return nil
	}
	s.savePositionLocked()
	err := s.handler.Destroy()
	s.handler = nil
	s.doc = nil
	s.rd = nil
	s.pager = nil
	s.hash = ""
	return err
}

func (s *Session) restoreLocked() {
	if s.positions == nil {
		return
	}
	pos, ok := s.positions.GetPosition(s.hash)
	if !ok {
		return
	}
	if err := s.rd.GoToChapter(pos.Chapter); err != nil {
		s.log.Debug("stored position no longer valid", "chapter", pos.Chapter, "error", err)
		return
	}
	if s.rd.PageModel() && pos.Page > 0 {
		s.rd.GoToPage(pos.Page)
	}
}

func (s *Session) savePositionLocked() {
	if s.positions == nil || s.rd == nil || s.hash == "" {
		return
	}
	pos := state.Position{
		Chapter: s.rd.CurrentChapter,
		Page:    s.rd.CurrentPage,
		Name:    filepath.Base(s.name),
	}
	if err := s.positions.SetPosition(s.hash, pos); err != nil {
		s.log.Warn("failed to save position", "name", s.name, "error", err)
	}
}

// readyLocked returns nil only when a document is ready.
func (s *Session) readyLocked() error {
	switch s.status {
	case Ready:
		return nil
	case NoDocument:
		return ErrNoDocument
	default:
		return ErrNotReady
	}
}
