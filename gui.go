//go:build gui

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"

	"github.com/metcalfc/epubizon/internal/document"
	"github.com/metcalfc/epubizon/internal/epub"
	"github.com/metcalfc/epubizon/internal/keymap"
	"github.com/metcalfc/epubizon/internal/pager"
	"github.com/metcalfc/epubizon/internal/session"
	"github.com/metcalfc/epubizon/internal/settings"
)

type desktopReader struct {
	ctx  context.Context
	app  *app
	sess *session.Session
	keys keymap.Map

	w        fyne.Window
	list     *widget.List
	text     *widget.Label
	images   *fyne.Container
	page     *canvas.Image
	scroll   *container.Scroll
	body     *fyne.Container
	status   *widget.Label
	progress *widget.ProgressBarInfinite
	search   *widget.Entry
	buttons  []*widget.Button

	entries []pager.Entry
	busy    bool
	modal   bool
}

func windowSize(geometry string) fyne.Size {
	var w, h float32
	if n, _ := fmt.Sscanf(geometry, "%fx%f", &w, &h); n != 2 || w <= 0 || h <= 0 {
		return fyne.NewSize(1200, 800)
	}
	return fyne.NewSize(w, h)
}

func (a *app) runRead(cmd *cobra.Command, args []string, fresh bool) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
		if fresh {
			a.forget(path)
		}
	}

	fa := fyneapp.NewWithID("io.github.metcalfc.epubizon")
	r := &desktopReader{
		ctx:  cmd.Context(),
		app:  a,
		sess: a.newSession(),
		keys: keymap.Default(),
		w:    fa.NewWindow("epubizon"),
	}
	defer r.sess.Close()

	r.build()
	r.w.Resize(windowSize(a.settings.Get().WindowGeometry))
	r.w.SetOnClosed(func() {
		size := r.w.Canvas().Size()
		if err := a.settings.Save(map[string]any{"window_geometry": fmt.Sprintf("%.0fx%.0f", size.Width, size.Height)}); err != nil {
			a.log.Warn("failed to save window size", "error", err)
		}
	})

	a.settings.OnChange(func(settings.Settings) {
		fyne.Do(func() {
			if !r.busy {
				r.status.SetText("Settings reloaded")
			}
		})
	})
	a.settings.Watch()

	if path != "" {
		r.open(path)
	}
	r.w.ShowAndRun()
	return nil
}

func (r *desktopReader) build() {
	r.list = widget.NewList(
		func() int { return len(r.entries) },
		func() fyne.CanvasObject { return widget.NewLabel("Chapter") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			e := r.entries[id]
			label := obj.(*widget.Label)
			label.TextStyle.Bold = e.Active
			label.TextStyle.Italic = e.Kind != pager.EntryChapter
			if e.Kind == pager.EntryChapter {
				label.SetText(e.Title)
			} else {
				label.SetText(e.Label)
			}
		},
	)
	r.list.OnSelected = func(id widget.ListItemID) {
		r.list.UnselectAll()
		if id >= len(r.entries) {
			return
		}
		switch e := r.entries[id]; e.Kind {
		case pager.EntryChapter:
			r.navigate(func() (session.Location, error) { return r.sess.GoToChapter(e.Index) })
		case pager.EntryJumpBackward:
			r.sess.JumpBackward()
			r.refreshList()
		case pager.EntryJumpForward:
			r.sess.JumpForward()
			r.refreshList()
		}
	}

	r.text = widget.NewLabel("Open an EPUB or PDF file to start reading.")
	r.text.Wrapping = fyne.TextWrapWord
	r.page = canvas.NewImageFromImage(nil)
	r.page.FillMode = canvas.ImageFillContain
	r.page.Hide()
	r.images = container.NewVBox()
	r.scroll = container.NewVScroll(container.NewVBox(r.text, r.images))
	r.body = container.NewStack(r.scroll, r.page)

	r.status = widget.NewLabel("")
	r.progress = widget.NewProgressBarInfinite()
	r.progress.Hide()

	r.search = widget.NewEntry()
	r.search.SetPlaceHolder("Search the whole book")
	r.search.OnSubmitted = r.runSearch

	prev := widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() { r.navigate(r.sess.PrevPage) })
	next := widget.NewButtonWithIcon("", theme.NavigateNextIcon(), func() { r.navigate(r.sess.NextPage) })
	summarize := widget.NewButtonWithIcon("Summarize", theme.DocumentIcon(), r.summarize)
	open := widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), r.chooseFile)
	prefs := widget.NewButtonWithIcon("", theme.SettingsIcon(), r.showSettings)
	r.buttons = []*widget.Button{prev, next, summarize}

	toolbar := container.NewBorder(nil, nil,
		container.NewHBox(open, prev, next, summarize),
		prefs,
		r.search,
	)
	footer := container.NewBorder(nil, nil, nil, r.progress, r.status)
	reading := container.NewBorder(toolbar, footer, nil, nil, r.body)

	split := container.NewHSplit(r.list, reading)
	split.Offset = 0.25
	r.w.SetContent(split)

	r.w.Canvas().SetOnTypedKey(r.typedKey)
	r.w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierShortcutDefault},
		func(fyne.Shortcut) { r.chooseFile() })
	r.w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyReturn, Modifier: fyne.KeyModifierControl},
		func(fyne.Shortcut) { r.chooseFile() })
	r.setBusy(false, "")
}

// fyneKey converts a fyne key name to the keymap's naming.
func fyneKey(k fyne.KeyName) string {
	switch k {
	case fyne.KeyEscape:
		return "esc"
	case fyne.KeyReturn, fyne.KeyEnter:
		return "enter"
	}
	return strings.ToLower(string(k))
}

func (r *desktopReader) focus() keymap.Focus {
	switch {
	case r.modal:
		return keymap.FocusModal
	case r.w.Canvas().Focused() != nil:
		return keymap.FocusInput
	default:
		return keymap.FocusNone
	}
}

func (r *desktopReader) typedKey(ev *fyne.KeyEvent) {
	switch r.keys.Lookup(fyneKey(ev.Name), r.focus()) {
	case keymap.PrevPage:
		r.navigate(r.sess.PrevPage)
	case keymap.NextPage:
		r.navigate(r.sess.NextPage)
	case keymap.NextChapter:
		r.navigate(r.sess.NextChapter)
	case keymap.PrevChapter:
		r.navigate(r.sess.PrevChapter)
	case keymap.Summarize:
		r.summarize()
	case keymap.Dismiss:
		r.w.Canvas().Unfocus()
		r.status.SetText("")
	case keymap.Search:
		r.w.Canvas().Focus(r.search)
	case keymap.Settings:
		r.showSettings()
	case keymap.Quit:
		r.w.Close()
	}
}

// setBusy disables the controls that start another operation.
func (r *desktopReader) setBusy(busy bool, msg string) {
	r.busy = busy
	ready := false
	if st, _ := r.sess.Status(); st == session.Ready {
		ready = true
	}
	for _, b := range r.buttons {
		if busy || !ready {
			b.Disable()
		} else {
			b.Enable()
		}
	}
	if busy {
		r.progress.Show()
	} else {
		r.progress.Hide()
	}
	r.status.SetText(msg)
}

func (r *desktopReader) chooseFile() {
	if r.busy {
		return
	}
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		r.modal = false
		if err != nil {
			dialog.ShowError(err, r.w)
			return
		}
		if rc == nil {
			return
		}
		path := rc.URI().Path()
		rc.Close()
		r.open(path)
	}, r.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".epub", ".pdf"}))
	r.modal = true
	fd.Show()
}

func (r *desktopReader) open(path string) {
	r.setBusy(true, "Opening "+path)
	go func() {
		doc, err := r.sess.OpenFile(r.ctx, path)
		fyne.Do(func() {
			if errors.Is(err, session.ErrSuperseded) {
				return
			}
			r.setBusy(false, "")
			if err != nil {
				dialog.ShowError(err, r.w)
				return
			}
			r.w.SetTitle("epubizon - " + doc.Title())
			if doc.Mode == document.Degraded {
				r.status.SetText("This file could not be read fully; showing placeholder content.")
			}
			r.refreshList()
			r.render()
		})
	}()
}

func (r *desktopReader) navigate(step func() (session.Location, error)) {
	if r.busy {
		return
	}
	if _, err := step(); err != nil {
		if !errors.Is(err, session.ErrNoDocument) {
			r.status.SetText(err.Error())
		}
		return
	}
	r.refreshList()
	r.render()
}

func (r *desktopReader) refreshList() {
	entries, err := r.sess.Entries()
	if err != nil {
		return
	}
	r.entries = entries
	r.list.Refresh()
	if i := activeEntry(entries); i > 0 {
		r.list.ScrollTo(i)
	}
}

func (r *desktopReader) render() {
	r.setBusy(true, "Rendering")
	go func() {
		c, err := r.sess.Render(r.ctx)
		var text string
		var blobs []epub.Blob
		if err == nil && c.Kind == document.Markup {
			text, err = r.sess.Text(r.ctx)
			for _, h := range epub.ImageHandles(c.Markup) {
				if b, ok := r.sess.Resource(h); ok {
					blobs = append(blobs, b)
				}
			}
		}
		loc, _ := r.sess.Location()
		fyne.Do(func() {
			if errors.Is(err, session.ErrSuperseded) {
				return
			}
			r.setBusy(false, fmt.Sprintf("%s | Page %d/%d", loc.ChapterTitle, loc.Page, loc.TotalPages))
			if err != nil {
				r.status.SetText(err.Error())
				return
			}
			if c.Kind == document.Bitmap {
				r.page.Image = c.Image
				r.page.Show()
				r.scroll.Hide()
				r.page.Refresh()
				return
			}
			r.page.Hide()
			r.scroll.Show()
			r.text.SetText(text)
			r.showImages(blobs)
			r.scroll.ScrollToTop()
		})
	}()
}

// showImages lays out the chapter's images below its text.
func (r *desktopReader) showImages(blobs []epub.Blob) {
	r.images.RemoveAll()
	for _, b := range blobs {
		img := canvas.NewImageFromReader(bytes.NewReader(b.Data), path.Base(b.Path))
		img.FillMode = canvas.ImageFillContain
		img.SetMinSize(fyne.NewSize(0, 320))
		r.images.Add(img)
	}
	r.images.Refresh()
}

func (r *desktopReader) summarize() {
	if r.busy {
		return
	}
	if st, _ := r.sess.Status(); st != session.Ready {
		return
	}
	r.setBusy(true, "Summarizing")
	go func() {
		text, err := r.sess.Summarize(r.ctx)
		fyne.Do(func() {
			r.setBusy(false, "")
			switch {
			case errors.Is(err, session.ErrSuperseded):
			case errors.Is(err, session.ErrMissingAPIKey):
				r.showSettings()
			case err != nil:
				dialog.ShowError(err, r.w)
			default:
				r.showText("Summary", text)
			}
		})
	}()
}

func (r *desktopReader) runSearch(query string) {
	if r.busy || strings.TrimSpace(query) == "" {
		return
	}
	r.setBusy(true, "Searching")
	go func() {
		hits, err := r.sess.Search(r.ctx, query)
		fyne.Do(func() {
			r.setBusy(false, "")
			if err != nil {
				r.status.SetText(err.Error())
				return
			}
			r.showHits(query, hits)
		})
	}()
}

func (r *desktopReader) showHits(query string, hits []document.SearchHit) {
	if len(hits) == 0 {
		r.status.SetText(fmt.Sprintf("No matches for %q", query))
		return
	}
	var d dialog.Dialog
	list := widget.NewList(
		func() int { return len(hits) },
		func() fyne.CanvasObject {
			l := widget.NewLabel("")
			l.Wrapping = fyne.TextWrapWord
			return l
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			h := hits[id]
			obj.(*widget.Label).SetText(fmt.Sprintf("%s (p. %d): %s", h.ChapterTitle, h.Page, h.Excerpt))
		},
	)
	list.OnSelected = func(id widget.ListItemID) {
		h := hits[id]
		d.Hide()
		if r.sess.Document().Kind == document.KindPDF {
			r.navigate(func() (session.Location, error) { return r.sess.GoToPage(h.Unit) })
		} else {
			r.navigate(func() (session.Location, error) { return r.sess.GoToChapter(h.Unit) })
		}
	}
	d = dialog.NewCustom(fmt.Sprintf("%d matches for %q", len(hits), query), "Close", list, r.w)
	r.showModal(d, fyne.NewSize(600, 400))
}

func (r *desktopReader) showText(title, text string) {
	label := widget.NewLabel(text)
	label.Wrapping = fyne.TextWrapWord
	d := dialog.NewCustom(title, "Close", container.NewVScroll(label), r.w)
	r.showModal(d, fyne.NewSize(600, 400))
}

func (r *desktopReader) showModal(d dialog.Dialog, size fyne.Size) {
	r.modal = true
	d.SetOnClosed(func() { r.modal = false })
	d.Resize(size)
	d.Show()
}

func (r *desktopReader) showSettings() {
	cfg := r.app.settings.Get()

	key := widget.NewPasswordEntry()
	key.SetText(cfg.OpenAIAPIKey)
	language := widget.NewSelect([]string{"pt", "en", "es"}, nil)
	language.SetSelected(cfg.SummaryLanguage)
	model := widget.NewEntry()
	model.SetText(cfg.SummaryModel)

	items := []*widget.FormItem{
		widget.NewFormItem("OpenAI API key", key),
		widget.NewFormItem("Summary language", language),
		widget.NewFormItem("Summary model", model),
	}
	d := dialog.NewForm("Settings", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		update := map[string]any{
			"summary_language": language.Selected,
			"summary_model":    strings.TrimSpace(model.Text),
		}
		// The shown key may come from the environment; store it only when edited.
		if k := strings.TrimSpace(key.Text); k != cfg.OpenAIAPIKey {
			update["openai_api_key"] = k
		}
		err := r.app.settings.Save(update)
		if err != nil {
			dialog.ShowError(err, r.w)
		}
	}, r.w)
	r.showModal(d, fyne.NewSize(500, 250))
}
