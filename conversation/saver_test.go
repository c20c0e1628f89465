package conversation

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaverRetriesFailedPersist(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(blocker, "bot_data.json")
	s, err := Open(Options{Path: path, LockTimeout: time.Second})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	saver := NewSaver(context.Background(), s, slog.New(slog.NewTextHandler(io.Discard, nil)), 300*time.Millisecond)
	s.GetOrCreateTenant("g1").SetContinuous("c1", true)
	if err := saver.Save(context.Background(), "test"); err == nil {
		t.Fatalf("Save() expected error while parent is a file")
	}

	// Clear the obstruction before the retry fires.
	if err := os.Remove(blocker); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	saver.Wait()

	if s.Dirty() {
		t.Fatalf("Dirty() = true after retry")
	}
	reloaded, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open(reload) error = %v", err)
	}
	if !reloaded.GetOrCreateTenant("g1").IsContinuous("c1") {
		t.Fatalf("retried write missing continuous channel")
	}
}

func TestSaverMemoryStoreIsNoop(t *testing.T) {
	t.Parallel()

	saver := NewSaver(nil, NewMemory(), nil, 0)
	saver.Store().GetOrCreateTenant("g").SetKeywordIgnored("c", true)
	if err := saver.Save(context.Background(), "test"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	saver.Wait()
}
