//go:build !gui

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/metcalfc/epubizon/internal/document"
	"github.com/metcalfc/epubizon/internal/keymap"
	"github.com/metcalfc/epubizon/internal/pager"
	"github.com/metcalfc/epubizon/internal/session"
	"github.com/metcalfc/epubizon/internal/settings"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(1, 2)
)

type mode int

const (
	modeRead mode = iota
	modeChapters
	modeResults
	modeSearch
	modeOpen
	modeOverlay
)

type openedMsg struct {
	doc *document.Document
	err error
}

type textMsg struct {
	loc  session.Location
	text string
	err  error
}

type summaryMsg struct {
	text string
	err  error
}

// settingsMsg reports that the settings file changed on disk.
type settingsMsg struct{}

type searchMsg struct {
	query string
	hits  []document.SearchHit
	err   error
}

type model struct {
	ctx  context.Context
	sess *session.Session
	cfg  session.SettingsSource
	keys keymap.Map

	view  viewport.Model
	input textinput.Model
	spin  spinner.Model

	mode     mode
	busy     string
	overlay  string
	note     string
	settings bool
	status   string
	loc      session.Location
	entries  []pager.Entry
	hits     []document.SearchHit
	cursor   int
	path     string
	width    int
	height   int
	quitting bool
}

func newModel(ctx context.Context, sess *session.Session, cfg session.SettingsSource, path string) model {
	in := textinput.New()
	in.CharLimit = 512
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(busyStyle))

	m := model{
		ctx:    ctx,
		sess:   sess,
		cfg:    cfg,
		keys:   keymap.Default(),
		view:   viewport.New(80, 21),
		input:  in,
		spin:   sp,
		path:   path,
		width:  80,
		height: 24,
	}
	switch st, _ := sess.Status(); {
	case st == session.Ready:
		m.loc, _ = sess.Location()
	case path != "":
		m.busy = "Opening " + path
	default:
		m.startInput(modeOpen, "path to an .epub or .pdf file", "")
	}
	return m
}

func (m model) Init() tea.Cmd {
	switch {
	case m.busy != "":
		return tea.Batch(m.spin.Tick, m.openFile(m.path))
	case m.mode == modeRead:
		return m.loadText()
	default:
		return textinput.Blink
	}
}

func (m model) openFile(path string) tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		doc, err := sess.OpenFile(ctx, path)
		return openedMsg{doc: doc, err: err}
	}
}

func (m model) loadText() tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		loc, err := sess.Location()
		if err != nil {
			return textMsg{err: err}
		}
		text, err := sess.Text(ctx)
		return textMsg{loc: loc, text: text, err: err}
	}
}

func (m model) summarize() tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		text, err := sess.Summarize(ctx)
		return summaryMsg{text: text, err: err}
	}
}

func (m model) search(query string) tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		hits, err := sess.Search(ctx, query)
		return searchMsg{query: query, hits: hits, err: err}
	}
}

func (m *model) startInput(md mode, placeholder, value string) tea.Cmd {
	m.mode = md
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *model) showOverlay(text string) {
	m.mode = modeOverlay
	m.overlay = text
	m.note = ""
	m.settings = false
}

func (m *model) showSettings(note string) {
	m.showOverlay(note + m.settingsText())
	m.note = note
	m.settings = true
}

func (m *model) dismiss() {
	m.mode = modeRead
	m.overlay = ""
	m.note = ""
	m.settings = false
	m.status = ""
	m.input.Blur()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.Width = msg.Width
		m.view.Height = max(1, msg.Height-3)
		return m, nil

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case openedMsg:
		m.busy = ""
		if msg.err != nil {
			if errors.Is(msg.err, session.ErrSuperseded) {
				return m, nil
			}
			m.status = msg.err.Error()
			return m, m.startInput(modeOpen, "path to an .epub or .pdf file", m.path)
		}
		m.dismiss()
		if msg.doc.Mode == document.Degraded {
			m.status = "This file could not be read fully; showing placeholder content."
		}
		m.loc, _ = m.sess.Location()
		return m, m.loadText()

	case textMsg:
		if errors.Is(msg.err, session.ErrSuperseded) {
			return m, nil
		}
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		if cur, err := m.sess.Location(); err == nil && cur.Unit != msg.loc.Unit {
			return m, nil
		}
		m.loc = msg.loc
		m.view.SetContent(lipgloss.NewStyle().Width(max(20, m.width-2)).Render(msg.text))
		m.view.GotoTop()
		return m, nil

	case summaryMsg:
		m.busy = ""
		switch {
		case errors.Is(msg.err, session.ErrSuperseded):
			return m, nil
		case errors.Is(msg.err, session.ErrMissingAPIKey):
			m.showSettings("Summaries need an OpenAI API key.\n\n")
		case msg.err != nil:
			m.showOverlay(errorStyle.Render("Summary failed") + "\n\n" + msg.err.Error())
		default:
			m.showOverlay(titleStyle.Render("Summary: "+m.loc.ChapterTitle) + "\n\n" + msg.text)
		}
		return m, nil

	case settingsMsg:
		if m.settings && m.mode == modeOverlay {
			m.overlay = m.note + m.settingsText()
		}
		if m.busy == "" {
			m.status = "Settings reloaded"
		}
		return m, nil

	case searchMsg:
		m.busy = ""
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		if len(msg.hits) == 0 {
			m.status = fmt.Sprintf("No matches for %q", msg.query)
			return m, nil
		}
		m.hits = msg.hits
		m.cursor = 0
		m.mode = modeResults
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch m.mode {
	case modeSearch, modeOpen:
		if m.keys.Lookup(key, keymap.FocusInput) == keymap.Dismiss {
			if m.mode == modeOpen && m.loc.TotalPages == 0 {
				return m, nil
			}
			m.dismiss()
			return m, nil
		}
		if key == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if key == "enter" {
			return m.submitInput()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case modeChapters, modeResults:
		if m.keys.Lookup(key, keymap.FocusModal) == keymap.Dismiss {
			m.dismiss()
			return m, nil
		}
		return m.handleListKey(key)

	case modeOverlay:
		if m.keys.Lookup(key, keymap.FocusModal) == keymap.Dismiss {
			m.dismiss()
		}
		return m, nil
	}

	action := m.keys.Lookup(key, keymap.FocusNone)
	if m.busy != "" && action != keymap.Quit && action != keymap.Dismiss {
		return m, nil
	}

	switch action {
	case keymap.PrevPage:
		return m.navigate(m.sess.PrevPage)
	case keymap.NextPage:
		return m.navigate(m.sess.NextPage)
	case keymap.NextChapter:
		return m.navigate(m.sess.NextChapter)
	case keymap.PrevChapter:
		return m.navigate(m.sess.PrevChapter)

	case keymap.Summarize:
		m.busy = "Summarizing " + m.loc.ChapterTitle
		return m, tea.Batch(m.spin.Tick, m.summarize())

	case keymap.Dismiss:
		m.status = ""
		return m, nil

	case keymap.OpenFile:
		return m, m.startInput(modeOpen, "path to an .epub or .pdf file", m.recentFile())

	case keymap.Search:
		return m, m.startInput(modeSearch, "search the whole book", "")

	case keymap.Settings:
		m.showSettings("")
		return m, nil

	case keymap.Chapters:
		entries, err := m.sess.Entries()
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.entries = entries
		m.cursor = activeEntry(entries)
		m.mode = modeChapters
		return m, nil

	case keymap.Quit:
		m.quitting = true
		m.sess.Close()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m model) navigate(step func() (session.Location, error)) (tea.Model, tea.Cmd) {
	loc, err := step()
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	moved := loc.Unit != m.loc.Unit
	m.loc = loc
	if !moved {
		return m, nil
	}
	return m, m.loadText()
}

func (m model) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.Blur()
	if m.mode == modeOpen {
		m.mode = modeRead
		m.path = value
		m.status = ""
		m.busy = "Opening " + value
		return m, tea.Batch(m.spin.Tick, m.openFile(value))
	}
	m.mode = modeRead
	m.busy = "Searching"
	return m, tea.Batch(m.spin.Tick, m.search(value))
}

func (m model) handleListKey(key string) (tea.Model, tea.Cmd) {
	n := len(m.entries)
	if m.mode == modeResults {
		n = len(m.hits)
	}
	switch key {
	case "up", "k":
		m.cursor = max(0, m.cursor-1)
	case "down", "j":
		m.cursor = min(n-1, m.cursor+1)
	case "enter":
		if m.mode == modeResults {
			return m.selectHit()
		}
		return m.selectEntry()
	}
	return m, nil
}

func (m model) selectEntry() (tea.Model, tea.Cmd) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return m, nil
	}
	e := m.entries[m.cursor]
	switch e.Kind {
	case pager.EntryChapter:
		m.dismiss()
		return m.navigate(func() (session.Location, error) { return m.sess.GoToChapter(e.Index) })
	case pager.EntryJumpBackward:
		m.sess.JumpBackward()
	case pager.EntryJumpForward:
		m.sess.JumpForward()
	default:
		return m, nil
	}
	m.entries, _ = m.sess.Entries()
	m.cursor = 0
	return m, nil
}

func (m model) selectHit() (tea.Model, tea.Cmd) {
	if m.cursor < 0 || m.cursor >= len(m.hits) {
		return m, nil
	}
	h := m.hits[m.cursor]
	m.dismiss()
	if m.sess.Document().Kind == document.KindPDF {
		return m.navigate(func() (session.Location, error) { return m.sess.GoToPage(h.Unit) })
	}
	return m.navigate(func() (session.Location, error) { return m.sess.GoToChapter(h.Unit) })
}

func (m model) recentFile() string {
	if m.cfg == nil {
		return ""
	}
	if recent := m.cfg.Get().RecentFiles; len(recent) > 0 {
		return recent[0]
	}
	return ""
}

func (m model) settingsText() string {
	if m.cfg == nil {
		return "No settings available."
	}
	cfg := m.cfg.Get()
	key := "not set"
	if cfg.OpenAIAPIKey != "" {
		key = maskKey(cfg.OpenAIAPIKey)
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Settings") + "\n\n")
	fmt.Fprintf(&sb, "OpenAI API key:   %s\n", key)
	fmt.Fprintf(&sb, "Summary language: %s\n", cfg.SummaryLanguage)
	fmt.Fprintf(&sb, "Summary model:    %s\n\n", cfg.SummaryModel)
	sb.WriteString(controlsStyle.Render("Change with: epubizon settings set openai_api_key <key>"))
	return sb.String()
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n")

	switch m.mode {
	case modeOverlay:
		sb.WriteString(overlayStyle.Width(max(20, m.width-6)).Render(m.overlay))
	case modeChapters:
		sb.WriteString(m.chapterList())
	case modeResults:
		sb.WriteString(m.resultList())
	case modeSearch, modeOpen:
		sb.WriteString(m.view.View())
		sb.WriteString("\n")
		sb.WriteString(m.input.View())
	default:
		sb.WriteString(m.view.View())
	}
	sb.WriteString("\n")
	sb.WriteString(m.footer())
	return sb.String()
}

func (m model) header() string {
	doc := m.sess.Document()
	if doc == nil {
		return statusStyle.Render("No document open")
	}
	return titleStyle.Render(doc.Title()) + statusStyle.Render(fmt.Sprintf("%s | Chapter %d/%d | Page %d/%d",
		m.loc.ChapterTitle, m.loc.Chapter+1, len(doc.Chapters), m.loc.Page, m.loc.TotalPages))
}

func (m model) footer() string {
	switch {
	case m.busy != "":
		return m.spin.View() + " " + busyStyle.Render(m.busy)
	case m.status != "":
		return errorStyle.Render(m.status)
	case m.mode == modeChapters || m.mode == modeResults:
		return controlsStyle.Render("↑/↓: move  enter: open  esc: close")
	case m.mode != modeRead:
		return controlsStyle.Render("enter: confirm  esc: cancel")
	}
	return controlsStyle.Render(m.keys.Help(keymap.PrevPage, keymap.NextPage, keymap.NextChapter, keymap.PrevChapter,
		keymap.Summarize, keymap.Chapters, keymap.Search, keymap.OpenFile, keymap.Quit))
}

func (m model) visibleRows(n int) (start, end int) {
	rows := max(1, m.height-3)
	start = max(0, min(m.cursor-rows/2, n-rows))
	return start, min(n, start+rows)
}

func (m model) chapterList() string {
	var sb strings.Builder
	start, end := m.visibleRows(len(m.entries))
	for i := start; i < end; i++ {
		e := m.entries[i]
		line := e.Label
		if e.Kind == pager.EntryChapter {
			line = fmt.Sprintf("%3d. %s", e.Index+1, e.Title)
		}
		if e.Active {
			line = activeStyle.Render(line)
		}
		if e.Kind == pager.EntryJumpBackward || e.Kind == pager.EntryJumpForward || e.Kind == pager.EntrySummary {
			line = controlsStyle.Render(line)
		}
		if i == m.cursor {
			line = "> " + line
		} else {
			line = "  " + line
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m model) resultList() string {
	var sb strings.Builder
	start, end := m.visibleRows(len(m.hits))
	for i := start; i < end; i++ {
		h := m.hits[i]
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		fmt.Fprintf(&sb, "%s%s (p. %d): %s\n", prefix, h.ChapterTitle, h.Page, h.Excerpt)
	}
	return sb.String()
}

func (a *app) runRead(cmd *cobra.Command, args []string, fresh bool) error {
	a.logToFile()
	path := ""
	if len(args) > 0 {
		path = args[0]
		if fresh {
			a.forget(path)
		}
	}

	sess := a.newSession()
	defer sess.Close()

	m := newModel(cmd.Context(), sess, a.settings, path)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	a.settings.OnChange(func(settings.Settings) { p.Send(settingsMsg{}) })
	a.settings.Watch()
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
