package state

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestComputeHash(t *testing.T) {
	hash1 := ComputeHash([]byte("Hello, World!"))
	hash2 := ComputeHash([]byte("Different content"))
	hash3 := ComputeHash([]byte("Hello, World!"))

	// Same content = same hash
	if hash1 != hash3 {
		t.Errorf("Same content should produce same hash: %s != %s", hash1, hash3)
	}

	// Different content = different hash
	if hash1 == hash2 {
		t.Errorf("Different content should produce different hash")
	}

	// Hash should be 32 hex chars
	if len(hash1) != 32 {
		t.Errorf("Hash should be 32 chars, got %d", len(hash1))
	}
}

func TestComputeHashUsesHead(t *testing.T) {
	head := bytes.Repeat([]byte("a"), hashBytes)
	one := append(append([]byte{}, head...), []byte("tail one")...)
	two := append(append([]byte{}, head...), []byte("tail two")...)

	if ComputeHash(one) != ComputeHash(two) {
		t.Error("bytes past the first 8KB should not change the hash")
	}
	if len(ComputeHash(nil)) != 32 {
		t.Error("Hash should be 32 chars even for empty input")
	}
}

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	smallFile := filepath.Join(tmpDir, "small.epub")
	os.WriteFile(smallFile, []byte("tiny"), 0644)

	hash, err := HashFile(smallFile)
	if err != nil {
		t.Fatalf("HashFile failed on small file: %v", err)
	}
	if hash != ComputeHash([]byte("tiny")) {
		t.Errorf("HashFile and ComputeHash disagree")
	}

	if _, err := HashFile(filepath.Join(tmpDir, "missing.pdf")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStateStore(t *testing.T) {
	// Use temp directory for state
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)

	store, err := NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore failed: %v", err)
	}

	testHash := "abcdef1234567890abcdef1234567890"

	// GetPosition reports unknown hash
	if _, ok := store.GetPosition(testHash); ok {
		t.Error("Expected no position for unknown hash")
	}

	// SetPosition/GetPosition roundtrip
	err = store.SetPosition(testHash, Position{Chapter: 3, Page: 12})
	if err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}

	pos, ok := store.GetPosition(testHash)
	if !ok || pos.Chapter != 3 || pos.Page != 12 {
		t.Errorf("Expected chapter 3 page 12, got %+v", pos)
	}
	if pos.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}

	// Clear removes entry
	err = store.Clear(testHash)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, ok := store.GetPosition(testHash); ok {
		t.Error("Expected no position after clear")
	}
}

func TestStateStorePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)

	testHash := "abcdef1234567890abcdef1234567890"

	// Create store and set position
	store1, err := NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore failed: %v", err)
	}
	store1.SetPosition(testHash, Position{Chapter: 7, Page: 56, Name: "book.pdf"})

	if _, err := os.Stat(filepath.Join(tmpDir, "epubizon", stateFileName)); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	// Create new store instance - should load persisted data
	store2, err := NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore failed: %v", err)
	}

	pos, _ := store2.GetPosition(testHash)
	if pos.Chapter != 7 || pos.Page != 56 || pos.Name != "book.pdf" {
		t.Errorf("Expected persisted position, got %+v", pos)
	}
}

func TestStateStoreCorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)
	os.MkdirAll(filepath.Join(tmpDir, "epubizon"), 0755)
	os.WriteFile(filepath.Join(tmpDir, "epubizon", stateFileName), []byte("{not json"), 0644)

	store, err := NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore should tolerate a corrupt file: %v", err)
	}
	if _, ok := store.GetPosition("x"); ok {
		t.Error("Expected empty state")
	}
}

func TestStateStorePrunesOldest(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	store, err := NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore failed: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range MaxPositions + 2 {
		pos := Position{Chapter: i, UpdatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.SetPosition(fmt.Sprintf("hash-%d", i), pos); err != nil {
			t.Fatalf("SetPosition %d: %v", i, err)
		}
	}

	if store.Len() != MaxPositions {
		t.Errorf("Len = %d, want %d", store.Len(), MaxPositions)
	}
	for _, gone := range []string{"hash-0", "hash-1"} {
		if _, ok := store.GetPosition(gone); ok {
			t.Errorf("%s should have been pruned", gone)
		}
	}
	if pos, ok := store.GetPosition(fmt.Sprintf("hash-%d", MaxPositions+1)); !ok || pos.Chapter != MaxPositions+1 {
		t.Errorf("newest position missing: %+v", pos)
	}
}
