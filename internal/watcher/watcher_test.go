package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) record(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

func (c *changes) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(corpus, []byte("v0"), 0644); err != nil {
		t.Fatal(err)
	}

	var c changes
	w, err := NewWatcher([]string{corpus}, c.record, WithDebounce(150*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(corpus, []byte("v"+string(rune('1'+i))), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !waitFor(t, func() bool { return len(c.get()) >= 1 }) {
		t.Fatal("expected a change callback")
	}
	time.Sleep(300 * time.Millisecond)
	got := c.get()
	if len(got) != 1 {
		t.Errorf("expected one debounced callback, got %d: %v", len(got), got)
	}
	if got[0] != filepath.Clean(corpus) {
		t.Errorf("callback path = %q, want %q", got[0], corpus)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(corpus, []byte("v0"), 0644); err != nil {
		t.Fatal(err)
	}

	var c changes
	w, err := NewWatcher([]string{corpus}, c.record, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := c.get(); len(got) != 0 {
		t.Errorf("unexpected callbacks: %v", got)
	}
}

func TestWatcher_SeesReplaceByRename(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(corpus, []byte("v0"), 0644); err != nil {
		t.Fatal(err)
	}

	var c changes
	w, err := NewWatcher([]string{corpus}, c.record, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	tmp := filepath.Join(dir, "data.txt.tmp")
	if err := os.WriteFile(tmp, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, corpus); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return len(c.get()) == 1 }) {
		t.Errorf("expected callback after rename, got %v", c.get())
	}
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(corpus, []byte("v0"), 0644); err != nil {
		t.Fatal(err)
	}
	var c changes
	w, err := NewWatcher([]string{corpus}, c.record, WithDebounce(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.debounceChange(filepath.Clean(corpus))
	w.Stop()
	w.Stop()
	time.Sleep(50 * time.Millisecond)
	if got := c.get(); len(got) != 0 {
		t.Errorf("callback fired after Stop: %v", got)
	}
}

func TestNewWatcher_requiresFiles(t *testing.T) {
	if _, err := NewWatcher(nil, func(string) {}); err == nil {
		t.Error("expected error with no files")
	}
}
