package pager

import (
	"fmt"
	"testing"

	"github.com/metcalfc/epubizon/internal/document"
)

func makeDoc(n int, large bool) *document.Document {
	doc := &document.Document{IsLargeFile: large}
	for i := 0; i < n; i++ {
		doc.Chapters = append(doc.Chapters, document.Chapter{Title: fmt.Sprintf("Chapter %d", i+1)})
	}
	return doc
}

func TestCenteredWindow(t *testing.T) {
	c := New(makeDoc(300, true))
	w := c.Focus(150)
	if w.Start != 125 || w.End != 175 {
		t.Fatalf("window = [%d,%d), want [125,175)", w.Start, w.End)
	}

	entries := c.Entries(150)
	first, last := entries[0], entries[len(entries)-2]
	if first.Kind != EntryJumpBackward || first.Label != "125 chapters before" {
		t.Errorf("first entry = %+v", first)
	}
	if last.Kind != EntryJumpForward || last.Label != "125 chapters after" {
		t.Errorf("last entry = %+v", last)
	}
	summary := entries[len(entries)-1]
	if summary.Kind != EntrySummary || summary.Label != "Showing 50 of 300 chapters" {
		t.Errorf("summary = %+v", summary)
	}

	active := 0
	for _, e := range entries {
		if e.Active {
			active++
			if e.Index != 150 {
				t.Errorf("active entry index = %d", e.Index)
			}
		}
	}
	if active != 1 {
		t.Errorf("%d active entries, want 1", active)
	}
}

func TestWindowClampsAtBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		start, end int
	}{
		{"start", 3, 0, 50},
		{"end", 298, 250, 300},
		{"exact half", 25, 0, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Centered(tt.current, 300)
			if w.Start != tt.start || w.End != tt.end {
				t.Errorf("Centered(%d) = [%d,%d), want [%d,%d)", tt.current, w.Start, w.End, tt.start, tt.end)
			}
		})
	}

	c := New(makeDoc(300, true))
	c.Focus(0)
	for _, e := range c.Entries(0) {
		if e.Kind == EntryJumpBackward {
			t.Error("window at start must not offer a backward jump")
		}
	}
}

func TestSmallDocumentsUnwindowed(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		large bool
	}{
		{"below threshold", 80, true},
		{"at threshold", 100, true},
		{"many chapters not flagged large", 300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(makeDoc(tt.n, tt.large))
			w := c.Focus(tt.n - 1)
			if w.Windowed || w.Start != 0 || w.End != tt.n {
				t.Errorf("window = %+v, want full list", w)
			}
			if got := len(c.Entries(0)); got != tt.n {
				t.Errorf("%d entries, want %d", got, tt.n)
			}
		})
	}
}

func TestFocusRecentersOutsideWindow(t *testing.T) {
	c := New(makeDoc(300, true))
	c.Focus(150)
	if w := c.Focus(160); w.Start != 125 {
		t.Errorf("in-window focus moved window to %d", w.Start)
	}
	w := c.Focus(200)
	if !w.Contains(200) || w.Start != 175 {
		t.Errorf("window = [%d,%d), want re-centered on 200", w.Start, w.End)
	}
}

func TestJumps(t *testing.T) {
	c := New(makeDoc(300, true))
	c.Focus(150)

	w := c.JumpBackward()
	if w.Start != 75 || w.End != 125 {
		t.Errorf("JumpBackward = [%d,%d), want [75,125)", w.Start, w.End)
	}
	w = c.JumpForward()
	if w.Start != 125 || w.End != 175 {
		t.Errorf("JumpForward = [%d,%d), want [125,175)", w.Start, w.End)
	}

	c.Focus(10)
	if w := c.JumpBackward(); w.Start != 0 {
		t.Errorf("JumpBackward at start moved to %d", w.Start)
	}

	c.Focus(280)
	w = c.JumpForward()
	if w.End != 300 || w.Start != 250 {
		t.Errorf("JumpForward at end = [%d,%d)", w.Start, w.End)
	}

	c.Focus(220)
	w = c.JumpForward()
	if w.Start != 245 || w.End != 295 {
		t.Errorf("JumpForward = [%d,%d), want [245,295)", w.Start, w.End)
	}
	w = c.JumpForward()
	if w.Start != 295 || w.End != 300 || w.Len() != 5 {
		t.Errorf("tail window = [%d,%d)", w.Start, w.End)
	}
}
