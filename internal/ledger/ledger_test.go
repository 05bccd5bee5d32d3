package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeded.json")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", l.Len())
	}
}

func TestMarkSaveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeded.json")

	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Mark("0xaaa")
	l.Mark("0xbbb")
	l.Mark("0xaaa") // idempotent
	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	l2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !l2.Contains("0xaaa") || !l2.Contains("0xbbb") {
		t.Fatalf("reloaded ledger missing entries")
	}
	if l2.Contains("0xccc") {
		t.Fatalf("reloaded ledger contains unmarked id")
	}
	if l2.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l2.Len())
	}
}

func TestOpen_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeded.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", l.Len())
	}
	// A save after the tolerant load must produce a valid file again.
	l.Mark("0xaaa")
	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	l2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !l2.Contains("0xaaa") {
		t.Fatalf("entry lost after corrupt-file recovery")
	}
}

func TestOpen_LegacyArrayFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeded.json")
	if err := os.WriteFile(path, []byte(`["0xaaa", "0xbbb", ""]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !l.Contains("0xaaa") || !l.Contains("0xbbb") {
		t.Fatalf("legacy entries not loaded")
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
}

func TestSave_PrunesExpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeded.json")

	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Mark("0xold")
	l.Mark("0xnew")
	// Backdate one entry past any retention window.
	l.mu.Lock()
	l.markets["0xold"] = time.Now().UTC().Add(-48 * time.Hour)
	l.mu.Unlock()
	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	l2, err := Open(path, 24*time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := l2.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if l2.Contains("0xold") {
		t.Fatalf("expired entry survived pruning")
	}
	if !l2.Contains("0xnew") {
		t.Fatalf("fresh entry was pruned")
	}
}

func TestSave_EmptyPathIsNoop(t *testing.T) {
	l, err := Open("", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Mark("0xaaa")
	if err := l.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
}
