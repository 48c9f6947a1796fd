package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/metcalfc/epubizon/internal/session"
	"github.com/metcalfc/epubizon/internal/settings"
	"github.com/metcalfc/epubizon/internal/state"
	"github.com/metcalfc/epubizon/internal/summary"
)

// app holds what every command shares.
type app struct {
	settingsPath string
	logLevel     string
	outputFormat string

	log       *slog.Logger
	logFile   *os.File
	settings  *settings.Store
	positions *state.StateStore
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "epubizon [file]",
		Short: "EPUB and PDF reader with AI chapter summaries",
		Long: `Epubizon reads EPUB and PDF files in the terminal and summarizes chapters
with an OpenAI model.

Run it with a file to start reading, or use the subcommands to inspect a
book from scripts.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRead(cmd, args, false)
		},
	}
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", "", "settings file (default: ~/.epubizon/settings.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&a.outputFormat, "output", "o", "yaml", "output format: yaml or json")

	root.AddCommand(
		a.readCmd(),
		a.infoCmd(),
		a.chaptersCmd(),
		a.textCmd(),
		a.renderCmd(),
		a.searchCmd(),
		a.summarizeCmd(),
		a.settingsCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
	}
	if a.outputFormat != "yaml" && a.outputFormat != "json" {
		return fmt.Errorf("unknown output format: %s", a.outputFormat)
	}
	a.log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	store, err := settings.Open(a.settingsPath)
	if err != nil {
		return err
	}
	a.settings = store

	positions, err := state.NewStateStore()
	if err != nil {
		a.log.Warn("reading positions will not be saved", "error", err)
	} else {
		a.positions = positions
	}
	return nil
}

// logToFile redirects logging to the state directory so the terminal UI
// keeps the screen.
func (a *app) logToFile() {
	dir := state.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.log = slog.New(slog.DiscardHandler)
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "epubizon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		a.log = slog.New(slog.DiscardHandler)
		return
	}
	var level slog.Level
	level.UnmarshalText([]byte(a.logLevel))
	a.logFile = f
	a.log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

// newSession builds a session for the interactive readers. Positions are
// restored and saved.
func (a *app) newSession() *session.Session {
	opts := a.sessionOptions()
	if a.positions != nil {
		opts = append(opts, session.WithPositions(a.positions))
	}
	return session.New(opts...)
}

// newPeekSession builds a session that restores saved positions but never
// moves them.
func (a *app) newPeekSession() *session.Session {
	opts := a.sessionOptions()
	if a.positions != nil {
		opts = append(opts, session.WithPositions(readOnlyPositions{a.positions}))
	}
	return session.New(opts...)
}

func (a *app) sessionOptions() []session.Option {
	return []session.Option{
		session.WithLogger(a.log),
		session.WithSettings(a.settings),
		session.WithSummarizer(summary.New(summary.WithLogger(a.log))),
	}
}

// readOnlyPositions drops writes so one-shot commands leave the reader's
// place alone.
type readOnlyPositions struct {
	session.PositionStore
}

func (readOnlyPositions) SetPosition(string, state.Position) error { return nil }

// forget drops the saved position for path.
func (a *app) forget(path string) {
	if a.positions == nil {
		return
	}
	hash, err := state.HashFile(path)
	if err != nil {
		return
	}
	if err := a.positions.Clear(hash); err != nil {
		a.log.Warn("failed to clear reading position", "path", path, "error", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "epubizon %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
