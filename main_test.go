//go:build !gui

package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/metcalfc/epubizon/internal/session"
	"github.com/metcalfc/epubizon/internal/settings"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	m, _ := newTestModelWithStore(t)
	return m
}

func newTestModelWithStore(t *testing.T) (model, *settings.Store) {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EPUBIZON_OPENAI_API_KEY", "")

	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	sess := session.New(session.WithSettings(store))
	t.Cleanup(func() { sess.Close() })

	ctx := context.Background()
	if _, err := sess.Open(ctx, "book.epub", []byte("PK\x03\x04broken")); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return newModel(ctx, sess, store, ""), store
}

func press(t *testing.T, m model, msg tea.KeyMsg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelWithOpenDocument(t *testing.T) {
	m := newTestModel(t)
	if m.mode != modeRead {
		t.Errorf("mode = %v, want read", m.mode)
	}
	if m.loc.Unit != 0 {
		t.Errorf("unit = %d, want 0", m.loc.Unit)
	}
}

func TestNextPageLoadsText(t *testing.T) {
	m := newTestModel(t)

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if cmd == nil {
		t.Fatal("expected a text load command")
	}
	if m.loc.Unit != 1 {
		t.Errorf("unit = %d, want 1", m.loc.Unit)
	}

	msg, ok := cmd().(textMsg)
	if !ok {
		t.Fatal("command did not produce a textMsg")
	}
	if msg.err != nil {
		t.Fatalf("text: %v", msg.err)
	}
	if msg.loc.Unit != 1 || !strings.Contains(msg.text, "Chapter 2") {
		t.Errorf("textMsg = unit %d, %q", msg.loc.Unit, msg.text)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	if m.loc.Unit != 0 {
		t.Errorf("after left unit = %d, want 0", m.loc.Unit)
	}
}

func TestStaleTextIgnored(t *testing.T) {
	m := newTestModel(t)
	m.view.SetContent("current")

	next, _ := m.Update(textMsg{loc: session.Location{Unit: 3}, text: "stale"})
	m = next.(model)
	if m.loc.Unit != 0 {
		t.Errorf("stale text moved location to %d", m.loc.Unit)
	}
	if strings.Contains(m.view.View(), "stale") {
		t.Error("stale text was displayed")
	}
}

func TestSearchInputSuppressesBindings(t *testing.T) {
	m := newTestModel(t)

	m, _ = press(t, m, runes("/"))
	if m.mode != modeSearch {
		t.Fatalf("mode = %v, want search", m.mode)
	}

	m, _ = press(t, m, runes("q"))
	if m.quitting {
		t.Fatal("q quit while typing")
	}
	if got := m.input.Value(); got != "q" {
		t.Errorf("input = %q, want %q", got, "q")
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != modeRead {
		t.Errorf("esc left mode %v", m.mode)
	}
}

func TestChapterListSelect(t *testing.T) {
	m := newTestModel(t)

	m, _ = press(t, m, runes("c"))
	if m.mode != modeChapters {
		t.Fatalf("mode = %v, want chapters", m.mode)
	}
	if len(m.entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(m.entries))
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != modeRead {
		t.Errorf("mode = %v after select", m.mode)
	}
	if m.loc.Unit != 2 {
		t.Errorf("unit = %d, want 2", m.loc.Unit)
	}
	if cmd == nil {
		t.Error("expected a text load command")
	}
}

func TestMissingKeyShowsSettings(t *testing.T) {
	m := newTestModel(t)
	m.busy = "Summarizing"

	next, _ := m.Update(summaryMsg{err: session.ErrMissingAPIKey})
	m = next.(model)
	if m.busy != "" {
		t.Error("busy not cleared")
	}
	if m.mode != modeOverlay || !strings.Contains(m.overlay, "API key") {
		t.Errorf("overlay = %q in mode %v", m.overlay, m.mode)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != modeRead {
		t.Errorf("esc left mode %v", m.mode)
	}
}

func TestBusyIgnoresNavigation(t *testing.T) {
	m := newTestModel(t)
	m.busy = "Summarizing"

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if cmd != nil || m.loc.Unit != 0 {
		t.Errorf("navigation ran while busy: unit %d", m.loc.Unit)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(t)

	m, cmd := press(t, m, runes("q"))
	if !m.quitting || cmd == nil {
		t.Fatal("q did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command is not tea.Quit")
	}
	if m.View() != "" {
		t.Error("view not empty after quit")
	}
}

func TestSettingsReloadRefreshesOverlay(t *testing.T) {
	m, store := newTestModelWithStore(t)

	m, _ = press(t, m, runes(","))
	if m.mode != modeOverlay || !strings.Contains(m.overlay, "gpt-3.5-turbo") {
		t.Fatalf("overlay = %q in mode %v", m.overlay, m.mode)
	}

	if err := store.Save(map[string]any{"summary_model": "gpt-4o"}); err != nil {
		t.Fatal(err)
	}
	next, _ := m.Update(settingsMsg{})
	m = next.(model)
	if !strings.Contains(m.overlay, "gpt-4o") {
		t.Errorf("overlay not refreshed: %q", m.overlay)
	}
	if m.status != "Settings reloaded" {
		t.Errorf("status = %q", m.status)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	next, _ = m.Update(settingsMsg{})
	m = next.(model)
	if m.mode != modeRead || m.overlay != "" {
		t.Errorf("reload reopened the overlay: mode %v, %q", m.mode, m.overlay)
	}
}

func TestMissingKeyOverlayKeepsNote(t *testing.T) {
	m, store := newTestModelWithStore(t)

	next, _ := m.Update(summaryMsg{err: session.ErrMissingAPIKey})
	m = next.(model)
	if err := store.Save(map[string]any{"openai_api_key": "sk-reload-abcd"}); err != nil {
		t.Fatal(err)
	}
	next, _ = m.Update(settingsMsg{})
	m = next.(model)
	if !strings.Contains(m.overlay, "API key") || !strings.Contains(m.overlay, "sk-...abcd") {
		t.Errorf("overlay = %q", m.overlay)
	}
}
