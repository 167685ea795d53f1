package guideline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherInvalidatesOnChange(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "AGENTS.md")
	writeFile(t, path, "## Instructions\n- first version\n")

	reader := NewReader(nil)
	if _, err := reader.Merge(root, root); err != nil {
		t.Fatal(err)
	}
	if reader.CacheSize() != 1 {
		t.Fatalf("cache size = %d, want 1", reader.CacheSize())
	}

	w, err := NewWatcher(reader, root, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop() }()

	writeFile(t, path, "## Instructions\n- second version\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		set, err := reader.Merge(root, root)
		if err != nil {
			t.Fatal(err)
		}
		entries := set.Entries(SectionInstructions)
		if len(entries) == 1 && entries[0] == "second version" {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("cache was not invalidated after directive file change")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	reader := NewReader(nil)
	w, err := NewWatcher(reader, root, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop() }()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	w.pendingMu.Lock()
	pending := len(w.pending)
	w.pendingMu.Unlock()
	if pending != 0 {
		t.Errorf("non-candidate file queued for invalidation (%d pending)", pending)
	}
}
