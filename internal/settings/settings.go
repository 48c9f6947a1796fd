// Package settings persists user preferences in a JSON file through a
// private viper instance.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MaxRecentFiles bounds the recent files list.
const MaxRecentFiles = 10

// Settings is a snapshot of every preference.
type Settings struct {
	OpenAIAPIKey    string   `mapstructure:"openai_api_key" yaml:"openai_api_key" json:"openai_api_key"`
	FontSize        int      `mapstructure:"font_size" yaml:"font_size" json:"font_size"`
	FontFamily      string   `mapstructure:"font_family" yaml:"font_family" json:"font_family"`
	Theme           string   `mapstructure:"theme" yaml:"theme" json:"theme"`
	AutoSave        bool     `mapstructure:"auto_save" yaml:"auto_save" json:"auto_save"`
	PagesPerChapter int      `mapstructure:"pages_per_chapter" yaml:"pages_per_chapter" json:"pages_per_chapter"`
	SummaryLanguage string   `mapstructure:"summary_language" yaml:"summary_language" json:"summary_language"`
	SummaryModel    string   `mapstructure:"summary_model" yaml:"summary_model" json:"summary_model"`
	WindowGeometry  string   `mapstructure:"window_geometry" yaml:"window_geometry" json:"window_geometry"`
	RecentFiles     []string `mapstructure:"recent_files" yaml:"recent_files" json:"recent_files"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{
		FontSize:        12,
		FontFamily:      "Georgia",
		Theme:           "light",
		AutoSave:        true,
		PagesPerChapter: 10,
		SummaryLanguage: "pt",
		SummaryModel:    "gpt-3.5-turbo",
		WindowGeometry:  "1200x800",
		RecentFiles:     []string{},
	}
}

func (s Settings) asMap() map[string]any {
	return map[string]any{
		"openai_api_key":    s.OpenAIAPIKey,
		"font_size":         s.FontSize,
		"font_family":       s.FontFamily,
		"theme":             s.Theme,
		"auto_save":         s.AutoSave,
		"pages_per_chapter": s.PagesPerChapter,
		"summary_language":  s.SummaryLanguage,
		"summary_model":     s.SummaryModel,
		"window_geometry":   s.WindowGeometry,
		"recent_files":      s.RecentFiles,
	}
}

// Keys lists every known setting name in sorted order.
func Keys() []string {
	var keys []string
	for k := range Defaults().asMap() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrUnknownKey is returned when a partial update names a setting that does
// not exist.
var ErrUnknownKey = errors.New("unknown setting")

// Store loads, merges and persists settings.
type Store struct {
	mu        sync.RWMutex
	v         *viper.Viper
	path      string
	current   Settings
	callbacks []func(Settings)
}

// DefaultPath returns ~/.epubizon/settings.json.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".epubizon", "settings.json")
}

// Open loads settings from path. A missing file yields the defaults.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path}
	if err := s.initViper(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initViper() error {
	v := viper.New()
	for k, val := range Defaults().asMap() {
		v.SetDefault(k, val)
	}
	v.SetConfigFile(s.path)
	v.SetConfigType("json")

	if _, err := os.Stat(s.path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading settings file: %w", err)
		}
	}

	cfg, err := load(v)
	if err != nil {
		return err
	}
	s.v = v
	s.current = cfg
	return nil
}

func load(v *viper.Viper) (Settings, error) {
	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if cfg.RecentFiles == nil {
		cfg.RecentFiles = []string{}
	}
	return cfg, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Get returns the current settings (thread-safe). The API key has ${VAR}
// references expanded and falls back to EPUBIZON_OPENAI_API_KEY, then
// OPENAI_API_KEY, when none is stored.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.current
	cfg.RecentFiles = slices.Clone(s.current.RecentFiles)
	cfg.OpenAIAPIKey = ResolveEnvVars(cfg.OpenAIAPIKey)
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("EPUBIZON_OPENAI_API_KEY")
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg
}

// Save merges partial into the current settings. The result is written to
// disk when auto_save is on.
func (s *Store) Save(partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := Defaults().asMap()
	for k := range partial {
		if _, ok := known[k]; !ok {
			return fmt.Errorf("%q: %w", k, ErrUnknownKey)
		}
	}
	for k, val := range partial {
		s.v.Set(k, val)
	}
	if err := s.reload(); err != nil {
		return err
	}
	if s.current.AutoSave {
		return s.persist()
	}
	return nil
}

// Persist writes the current settings regardless of auto_save.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// AddRecentFile moves path to the front of the recent files list.
func (s *Store) AddRecentFile(path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	recent := s.Get().RecentFiles
	recent = slices.DeleteFunc(recent, func(p string) bool { return p == path })
	recent = append([]string{path}, recent...)
	if len(recent) > MaxRecentFiles {
		recent = recent[:MaxRecentFiles]
	}
	return s.Save(map[string]any{"recent_files": recent})
}

// RecentFiles returns the recent files that still exist, pruning the rest.
func (s *Store) RecentFiles() ([]string, error) {
	recent := s.Get().RecentFiles
	existing := slices.DeleteFunc(slices.Clone(recent), func(p string) bool {
		_, err := os.Stat(p)
		return err != nil
	})
	if len(existing) != len(recent) {
		if err := s.Save(map[string]any{"recent_files": existing}); err != nil {
			return existing, err
		}
	}
	return existing, nil
}

// ClearRecentFiles empties the recent files list.
func (s *Store) ClearRecentFiles() error {
	return s.Save(map[string]any{"recent_files": []string{}})
}

// Reset restores the defaults and writes them.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, val := range Defaults().asMap() {
		s.v.Set(k, val)
	}
	if err := s.reload(); err != nil {
		return err
	}
	return s.persist()
}

// Export writes the current settings to path as YAML.
func (s *Store) Export(path string) error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.current)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Import merges the known keys of a YAML file written by Export. Unknown
// keys are ignored.
func (s *Store) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	known := Defaults().asMap()
	valid := make(map[string]any)
	for k, val := range raw {
		if _, ok := known[k]; ok {
			valid[k] = val
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, val := range valid {
		s.v.Set(k, val)
	}
	if err := s.reload(); err != nil {
		return err
	}
	return s.persist()
}

// OnChange registers a callback for settings changes made on disk.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Watch enables hot-reloading of the settings file.
func (s *Store) Watch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.mu.Lock()
		if err := s.v.ReadInConfig(); err != nil {
			s.mu.Unlock()
			return
		}
		if err := s.reload(); err != nil {
			s.mu.Unlock()
			return
		}
		callbacks := make([]func(Settings), len(s.callbacks))
		copy(callbacks, s.callbacks)
		s.mu.Unlock()

		cfg := s.Get()
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	s.v.WatchConfig()
}

func (s *Store) reload() error {
	cfg, err := load(s.v)
	if err != nil {
		return err
	}
	s.current = cfg
	return nil
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
