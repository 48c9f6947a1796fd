package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

const (
	appName       = "epubizon"
	stateFileName = "reading_positions.json"
	hashBytes     = 8192 // First 8KB for content hash

	// MaxPositions bounds the store; the least recently updated entries go first.
	MaxPositions = 500
)

// Position is the saved reading position for a single file
type Position struct {
	Chapter   int       `json:"chapter"`
	Page      int       `json:"page"`
	Name      string    `json:"name,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateStore manages persistent reading state
type StateStore struct {
	path string
	data map[string]Position
	mu   sync.RWMutex
}

// NewStateStore creates or loads state from XDG_STATE_HOME/epubizon/
func NewStateStore() (*StateStore, error) {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	store := &StateStore{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]Position),
	}
	if err := store.load(); err != nil {
		// Non-fatal - start with empty state
		store.data = make(map[string]Position)
	}
	return store, nil
}

// Dir returns XDG_STATE_HOME/epubizon or ~/.local/state/epubizon
func Dir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

// ComputeHash generates content hash for document identity
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data[:min(len(data), hashBytes)])
	return hex.EncodeToString(hash[:16]) // First 16 bytes = 32 hex chars
}

// HashFile hashes the head of a file on disk
func HashFile(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return ComputeHash(buf[:n]), nil
}

// GetPosition returns saved position for a document hash
func (s *StateStore) GetPosition(hash string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.data[hash]
	return pos, ok
}

// SetPosition saves position for a document hash
func (s *StateStore) SetPosition(hash string, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now()
	}
	s.data[hash] = pos
	s.prune()
	return s.save()
}

// Len returns the number of saved positions
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *StateStore) prune() {
	if len(s.data) <= MaxPositions {
		return
	}
	hashes := make([]string, 0, len(s.data))
	for h := range s.data {
		hashes = append(hashes, h)
	}
	slices.SortFunc(hashes, func(a, b string) int {
		return s.data[a].UpdatedAt.Compare(s.data[b].UpdatedAt)
	})
	for _, h := range hashes[:len(hashes)-MaxPositions] {
		delete(s.data, h)
	}
}

// Clear removes saved position for a document hash
func (s *StateStore) Clear(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, hash)
	return s.save()
}

func (s *StateStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

func (s *StateStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
