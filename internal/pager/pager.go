// Package pager bounds the chapter navigation list for long documents. Large
// documents show a fixed-width window of chapters around the reading position
// instead of the full list.
package pager

import (
	"fmt"

	"github.com/metcalfc/epubizon/internal/document"
)

const (
	// WindowSize is the maximum number of chapters in a window.
	WindowSize = 50
	// Threshold is the chapter count above which large documents are windowed.
	Threshold = 100
)

// Window is the slice [Start, End) of chapters currently shown.
type Window struct {
	Start    int
	End      int
	Total    int
	Windowed bool
}

// Before is the number of chapters hidden ahead of the window.
func (w Window) Before() int { return w.Start }

// After is the number of chapters hidden behind the window.
func (w Window) After() int { return w.Total - w.End }

// Len is the number of chapters in the window.
func (w Window) Len() int { return w.End - w.Start }

// Contains reports whether chapter i is inside the window.
func (w Window) Contains(i int) bool { return i >= w.Start && i < w.End }

// Summary returns the count line shown under a windowed list.
func (w Window) Summary() string {
	return fmt.Sprintf("Showing %d of %d chapters", w.Len(), w.Total)
}

// EntryKind distinguishes chapter rows from the jump affordances.
type EntryKind int

const (
	EntryChapter EntryKind = iota
	EntryJumpBackward
	EntryJumpForward
	EntrySummary
)

// Entry is one row of the navigation list.
type Entry struct {
	Kind   EntryKind
	Index  int
	Title  string
	Label  string
	Active bool
}

// Controller decides which chapters the navigation list shows.
type Controller struct {
	chapters []document.Chapter
	large    bool
	window   Window
}

// New creates a controller for doc, focused on chapter 0.
func New(doc *document.Document) *Controller {
	c := &Controller{chapters: doc.Chapters, large: doc.IsLargeFile}
	c.Focus(0)
	return c
}

// Virtualized reports whether the list is windowed at all.
func (c *Controller) Virtualized() bool {
	return c.large && len(c.chapters) > Threshold
}

// Window returns the current window.
func (c *Controller) Window() Window {
	return c.window
}

// Focus keeps current visible, re-centering the window when current lies
// outside it.
func (c *Controller) Focus(current int) Window {
	total := len(c.chapters)
	if !c.Virtualized() {
		c.window = Window{Start: 0, End: total, Total: total}
		return c.window
	}
	if c.window.Windowed && c.window.Contains(current) {
		return c.window
	}
	c.window = Centered(current, total)
	return c.window
}

// JumpBackward shows the window that ends where the current one starts.
func (c *Controller) JumpBackward() Window {
	if !c.Virtualized() || c.window.Start == 0 {
		return c.window
	}
	start := max(0, c.window.Start-WindowSize)
	c.window = Window{Start: start, End: min(c.window.Total, start+WindowSize), Total: c.window.Total, Windowed: true}
	return c.window
}

// JumpForward shows the window that begins where the current one ends.
func (c *Controller) JumpForward() Window {
	if !c.Virtualized() || c.window.End >= c.window.Total {
		return c.window
	}
	start := c.window.End
	c.window = Window{Start: start, End: min(c.window.Total, start+WindowSize), Total: c.window.Total, Windowed: true}
	return c.window
}

// Entries builds the rows for the current window, marking current as active.
func (c *Controller) Entries(current int) []Entry {
	w := c.window
	var out []Entry
	if w.Windowed && w.Before() > 0 {
		out = append(out, Entry{Kind: EntryJumpBackward, Index: w.Start, Label: fmt.Sprintf("%d chapters before", w.Before())})
	}
	for i := w.Start; i < w.End; i++ {
		out = append(out, Entry{
			Kind:   EntryChapter,
			Index:  i,
			Title:  c.chapters[i].Title,
			Label:  c.chapters[i].Title,
			Active: i == current,
		})
	}
	if w.Windowed && w.After() > 0 {
		out = append(out, Entry{Kind: EntryJumpForward, Index: w.End, Label: fmt.Sprintf("%d chapters after", w.After())})
	}
	if w.Windowed {
		out = append(out, Entry{Kind: EntrySummary, Label: w.Summary()})
	}
	return out
}

// Centered returns a WindowSize-wide window around current, clamped to [0, total).
func Centered(current, total int) Window {
	half := WindowSize / 2
	start := max(0, current-half)
	end := min(total, start+WindowSize)
	if end-start < WindowSize {
		start = max(0, end-WindowSize)
	}
	return Window{Start: start, End: end, Total: total, Windowed: true}
}
