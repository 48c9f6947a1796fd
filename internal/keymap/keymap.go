// Package keymap maps key names to reader actions.
//
// Key names follow bubbletea's KeyMsg.String() form ("left", "ctrl+o",
// "esc"). The desktop front end translates its own key events into the
// same names.
package keymap

import "strings"

// Action is something a key press asks the reader to do.
type Action int

const (
	None Action = iota
	PrevPage
	NextPage
	NextChapter
	PrevChapter
	Summarize
	Dismiss
	OpenFile
	Search
	Settings
	Chapters
	Quit
)

var actionNames = map[Action]string{
	None:        "none",
	PrevPage:    "previous page",
	NextPage:    "next page",
	NextChapter: "next chapter",
	PrevChapter: "previous chapter",
	Summarize:   "summarize",
	Dismiss:     "dismiss",
	OpenFile:    "open file",
	Search:      "search",
	Settings:    "settings",
	Chapters:    "chapters",
	Quit:        "quit",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Focus says what currently owns the keyboard.
type Focus int

const (
	FocusNone Focus = iota
	FocusInput
	FocusModal
)

// Binding pairs an action with the keys that trigger it.
type Binding struct {
	Action Action
	Keys   []string
}

// Map is a set of key bindings.
type Map struct {
	bindings []Binding
	lookup   map[string]Action
}

// Default returns the reader's key bindings. Up moves to the next chapter
// and down to the previous one.
func Default() Map {
	return New([]Binding{
		{PrevPage, []string{"left"}},
		{NextPage, []string{"right"}},
		{NextChapter, []string{"up"}},
		{PrevChapter, []string{"down"}},
		{Summarize, []string{"s", "f1"}},
		{Dismiss, []string{"esc"}},
		{OpenFile, []string{"ctrl+enter", "ctrl+o"}},
		{Search, []string{"/", "ctrl+f"}},
		{Settings, []string{","}},
		{Chapters, []string{"c", "tab"}},
		{Quit, []string{"q", "ctrl+c"}},
	})
}

// New builds a Map. Later bindings win when a key is bound twice.
func New(bindings []Binding) Map {
	m := Map{bindings: bindings, lookup: make(map[string]Action)}
	for _, b := range bindings {
		for _, k := range b.Keys {
			m.lookup[strings.ToLower(k)] = b.Action
		}
	}
	return m
}

// Lookup returns the action bound to key. While a text input or a modal has
// focus only Dismiss gets through, so typing never triggers navigation.
func (m Map) Lookup(key string, focus Focus) Action {
	a, ok := m.lookup[strings.ToLower(key)]
	if !ok {
		return None
	}
	if focus != FocusNone && a != Dismiss {
		return None
	}
	return a
}

// Keys returns the keys bound to a.
func (m Map) Keys(a Action) []string {
	for _, b := range m.bindings {
		if b.Action == a {
			return b.Keys
		}
	}
	return nil
}

// Help renders a one-line summary of the given actions.
func (m Map) Help(actions ...Action) string {
	var parts []string
	for _, a := range actions {
		keys := m.Keys(a)
		if len(keys) == 0 {
			continue
		}
		parts = append(parts, strings.Join(keys, "/")+": "+a.String())
	}
	return strings.Join(parts, "  ")
}
