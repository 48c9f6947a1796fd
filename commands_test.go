package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metcalfc/epubizon/internal/session"
	"github.com/metcalfc/epubizon/internal/settings"
	"github.com/metcalfc/epubizon/internal/state"
)

// execute runs the root command against a settings file in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EPUBIZON_OPENAI_API_KEY", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--settings", filepath.Join(dir, "settings.json")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeBook(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "book.epub")
	if err := os.WriteFile(path, []byte("PK\x03\x04broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSettingsSetAndGet(t *testing.T) {
	dir := t.TempDir()

	if _, err := execute(t, dir, "settings", "set", "summary_language", "en"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := execute(t, dir, "settings", "set", "font_size", "14"); err != nil {
		t.Fatalf("set: %v", err)
	}

	out, err := execute(t, dir, "-o", "json", "settings", "get")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got settings.Settings
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.SummaryLanguage != "en" || got.FontSize != 14 {
		t.Errorf("settings = %+v", got)
	}

	out, err = execute(t, dir, "settings", "get", "summary_language")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if strings.TrimSpace(out) != "summary_language: en" {
		t.Errorf("get summary_language = %q", out)
	}
}

func TestSettingsMasksKey(t *testing.T) {
	dir := t.TempDir()

	if _, err := execute(t, dir, "settings", "set", "openai_api_key", "sk-test-1234567890"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := execute(t, dir, "settings", "get", "openai_api_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.Contains(out, "1234567890") || !strings.Contains(out, "sk-...7890") {
		t.Errorf("key not masked: %q", out)
	}
}

func TestSettingsUnknownKey(t *testing.T) {
	_, err := execute(t, t.TempDir(), "settings", "set", "colour", "red")
	if !errors.Is(err, settings.ErrUnknownKey) {
		t.Errorf("err = %v, want ErrUnknownKey", err)
	}
}

func TestInfoDegradedBook(t *testing.T) {
	dir := t.TempDir()
	book := writeBook(t, dir)

	out, err := execute(t, dir, "-o", "json", "info", book)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var info session.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if filepath.Base(info.Name) != "book.epub" || info.Chapters != 5 || info.Mode != "degraded" {
		t.Errorf("info = %+v", info)
	}
}

func TestTextCommand(t *testing.T) {
	dir := t.TempDir()
	book := writeBook(t, dir)

	out, err := execute(t, dir, "text", book, "--unit", "2")
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.Contains(out, "Chapter 3") {
		t.Errorf("text = %q", out)
	}
}

func TestOneShotKeepsReadingPosition(t *testing.T) {
	dir := t.TempDir()
	book := writeBook(t, dir)
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))

	store, err := state.NewStateStore()
	if err != nil {
		t.Fatal(err)
	}
	hash, err := state.HashFile(book)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetPosition(hash, state.Position{Chapter: 1}); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{
		{"text", book, "--unit", "3"},
		{"render", book, "--unit", "4", "--out", filepath.Join(dir, "out.html")},
	} {
		if _, err := execute(t, dir, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	out, err := execute(t, dir, "text", book)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Chapter 2") {
		t.Errorf("saved position not restored: %q", out)
	}

	store, err = state.NewStateStore()
	if err != nil {
		t.Fatal(err)
	}
	pos, ok := store.GetPosition(hash)
	if !ok || pos.Chapter != 1 {
		t.Errorf("position = %+v, %v; want chapter 1", pos, ok)
	}
}

func TestSummarizeWithoutKey(t *testing.T) {
	dir := t.TempDir()
	book := writeBook(t, dir)

	_, err := execute(t, dir, "summarize", book)
	if !errors.Is(err, session.ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	if _, err := execute(t, t.TempDir(), "-o", "xml", "settings", "get"); err == nil {
		t.Error("expected an error for -o xml")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{"font_size", "14", 14},
		{"auto_save", "false", false},
		{"summary_model", "123", "123"},
		{"theme", "dark", "dark"},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.key, tt.raw)
		if err != nil {
			t.Errorf("parseValue(%q, %q): %v", tt.key, tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseValue(%q, %q) = %#v, want %#v", tt.key, tt.raw, got, tt.want)
		}
	}

	if _, err := parseValue("nope", "1"); !errors.Is(err, settings.ErrUnknownKey) {
		t.Errorf("unknown key err = %v", err)
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":                   "",
		"short":              "*****",
		"sk-abcdefghijklmno": "sk-...lmno",
	}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := writeOutput(&buf, "json", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "{\n  \"a\": 1\n}" {
		t.Errorf("json = %q", buf.String())
	}

	buf.Reset()
	if err := writeOutput(&buf, "yaml", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "a: 1\n" {
		t.Errorf("yaml = %q", buf.String())
	}

	if err := writeOutput(&buf, "toml", nil); err == nil {
		t.Error("expected an error for toml")
	}
}
