package main

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metcalfc/epubizon/internal/document"
	"github.com/metcalfc/epubizon/internal/pager"
	"github.com/metcalfc/epubizon/internal/session"
	"github.com/metcalfc/epubizon/internal/settings"
	"github.com/metcalfc/epubizon/internal/summary"
)

// openBook loads path into a fresh session without touching the recent
// files list or the saved reading position.
func (a *app) openBook(cmd *cobra.Command, path string) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", path, err)
	}
	s := a.newPeekSession()
	if _, err := s.Open(cmd.Context(), path, data); err != nil {
		return nil, err
	}
	return s, nil
}

// moveTo positions s on unit. Negative units keep the restored position.
func moveTo(s *session.Session, unit int) error {
	if unit < 0 {
		return nil
	}
	var err error
	if s.Document().Kind == document.KindPDF {
		_, err = s.GoToPage(unit)
	} else {
		_, err = s.GoToChapter(unit)
	}
	return err
}

func (a *app) readCmd() *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "read [file]",
		Short: "Open the interactive reader",
		Example: `  epubizon read book.epub
  epubizon read --fresh paper.pdf`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRead(cmd, args, fresh)
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "ignore the saved reading position")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show document metadata and structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBook(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			info, err := s.Info()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.outputFormat, info)
		},
	}
}

type chapterRow struct {
	Kind   string `json:"kind" yaml:"kind"`
	Index  int    `json:"index" yaml:"index"`
	Title  string `json:"title" yaml:"title"`
	Pages  string `json:"pages,omitempty" yaml:"pages,omitempty"`
	Active bool   `json:"active,omitempty" yaml:"active,omitempty"`
}

func chapterRows(doc *document.Document, entries []pager.Entry) []chapterRow {
	rows := make([]chapterRow, 0, len(entries))
	for _, e := range entries {
		row := chapterRow{Index: e.Index, Title: e.Title, Active: e.Active}
		switch e.Kind {
		case pager.EntryChapter:
			row.Kind = "chapter"
			if ch := doc.Chapters[e.Index]; ch.HasPages() {
				row.Pages = fmt.Sprintf("%d-%d", ch.PageStart, ch.PageEnd)
			}
		case pager.EntryJumpBackward:
			row.Kind = "before"
			row.Title = e.Label
		case pager.EntryJumpForward:
			row.Kind = "after"
			row.Title = e.Label
		case pager.EntrySummary:
			row.Kind = "summary"
			row.Title = e.Label
		}
		rows = append(rows, row)
	}
	return rows
}

func (a *app) chaptersCmd() *cobra.Command {
	var at int
	cmd := &cobra.Command{
		Use:   "chapters FILE",
		Short: "List chapters around a position",
		Long: `List the chapter navigation rows. Large books show a window of 50
chapters around the current one, with counts for the chapters outside it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBook(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			if at >= 0 {
				if _, err := s.GoToChapter(at); err != nil {
					return err
				}
			}
			entries, err := s.Entries()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.outputFormat, chapterRows(s.Document(), entries))
		},
	}
	cmd.Flags().IntVar(&at, "at", -1, "chapter index to center on")
	return cmd
}

func (a *app) textCmd() *cobra.Command {
	var unit int
	cmd := &cobra.Command{
		Use:   "text FILE",
		Short: "Print the plain text of a chapter (EPUB) or page (PDF)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBook(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			if err := moveTo(s, unit); err != nil {
				return err
			}
			text, err := s.Text(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().IntVar(&unit, "unit", -1, "chapter index (EPUB) or page number (PDF); default is the saved position")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	var unit int
	var out string
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a unit to markup (EPUB) or a PNG image (PDF)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBook(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			if err := moveTo(s, unit); err != nil {
				return err
			}
			c, err := s.Render(cmd.Context())
			if err != nil {
				return err
			}
			if c.Mode == document.Degraded {
				a.log.Warn("rendered a placeholder", "unit", c.Index, "cause", c.Cause)
			}
			return writeContent(cmd.OutOrStdout(), c, out)
		},
	}
	cmd.Flags().IntVar(&unit, "unit", -1, "chapter index (EPUB) or page number (PDF); default is the saved position")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout for markup, page-N.png for images)")
	return cmd
}

func writeContent(stdout io.Writer, c *document.Content, out string) error {
	if c.Kind == document.Markup {
		if out == "" {
			_, err := io.WriteString(stdout, c.Markup+"\n")
			return err
		}
		return os.WriteFile(out, []byte(c.Markup), 0o644)
	}

	if out == "" {
		out = fmt.Sprintf("page-%d.png", c.Index)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, c.Image); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%.0fx%.0f)\n", out, c.Width, c.Height)
	return nil
}

// activeEntry returns the row of the current chapter, or 0.
func activeEntry(entries []pager.Entry) int {
	for i, e := range entries {
		if e.Active {
			return i
		}
	}
	return 0
}

type searchRow struct {
	Unit    int    `json:"unit" yaml:"unit"`
	Page    int    `json:"page" yaml:"page"`
	Chapter string `json:"chapter" yaml:"chapter"`
	Excerpt string `json:"excerpt" yaml:"excerpt"`
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search FILE QUERY",
		Short: "Search the whole document, case-insensitively",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBook(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			hits, err := s.Search(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			rows := make([]searchRow, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, searchRow{Unit: h.Unit, Page: h.Page, Chapter: h.ChapterTitle, Excerpt: h.Excerpt})
			}
			return writeOutput(cmd.OutOrStdout(), a.outputFormat, rows)
		},
	}
}

func (a *app) summarizeCmd() *cobra.Command {
	var unit int
	var estimate bool
	cmd := &cobra.Command{
		Use:   "summarize FILE",
		Short: "Summarize a chapter (EPUB) or page (PDF)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBook(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			if err := moveTo(s, unit); err != nil {
				return err
			}

			if estimate {
				text, err := s.Text(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), a.outputFormat, summary.EstimateCost(summary.Truncate(text)))
			}

			sum, err := s.Summarize(cmd.Context())
			if errors.Is(err, session.ErrMissingAPIKey) {
				return fmt.Errorf("%w: run 'epubizon settings set openai_api_key <key>'", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	cmd.Flags().IntVar(&unit, "unit", -1, "chapter index (EPUB) or page number (PDF); default is the saved position")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "print the estimated cost instead of calling the API")
	return cmd
}

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change settings",
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Print all settings or one value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.settings.Get()
			cfg.OpenAIAPIKey = maskKey(cfg.OpenAIAPIKey)
			if len(args) == 0 {
				return writeOutput(cmd.OutOrStdout(), a.outputFormat, cfg)
			}
			values, err := settingsMap(cfg)
			if err != nil {
				return err
			}
			v, ok := values[args[0]]
			if !ok {
				return fmt.Errorf("%q: %w", args[0], settings.ErrUnknownKey)
			}
			return writeOutput(cmd.OutOrStdout(), a.outputFormat, map[string]any{args[0]: v})
		},
	}

	set := &cobra.Command{
		Use:     "set KEY VALUE",
		Short:   "Change one setting",
		Example: "  epubizon settings set summary_language en\n  epubizon settings set openai_api_key '${OPENAI_API_KEY}'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[0], args[1])
			if err != nil {
				return err
			}
			return a.settings.Save(map[string]any{args[0]: v})
		},
	}

	export := &cobra.Command{
		Use:   "export FILE",
		Short: "Write settings to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.settings.Export(args[0])
		},
	}

	imp := &cobra.Command{
		Use:   "import FILE",
		Short: "Merge settings from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.settings.Import(args[0])
		},
	}

	var clearList bool
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recently opened files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearList {
				return a.settings.ClearRecentFiles()
			}
			files, err := a.settings.RecentFiles()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.outputFormat, files)
		},
	}
	recent.Flags().BoolVar(&clearList, "clear", false, "clear the list")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.settings.Reset()
		},
	}

	testKey := &cobra.Command{
		Use:   "test-key",
		Short: "Check that the configured OpenAI API key works",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := summary.New(summary.WithLogger(a.log))
			resp := client.TestKey(cmd.Context(), a.settings.Get().OpenAIAPIKey)
			if err := resp.Err(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Summary)
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.settings.Path())
		},
	}

	cmd.AddCommand(get, set, export, imp, recent, reset, testKey, path)
	return cmd
}

// settingsMap flattens s into its file keys.
func settingsMap(s settings.Settings) (map[string]any, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parseValue reads raw as YAML unless key holds a string setting.
func parseValue(key, raw string) (any, error) {
	defaults, err := settingsMap(settings.Defaults())
	if err != nil {
		return nil, err
	}
	def, ok := defaults[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, settings.ErrUnknownKey)
	}
	if _, isString := def.(string); isString {
		return raw, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return strings.Repeat("*", len(key))
	default:
		return key[:3] + "..." + key[len(key)-4:]
	}
}
