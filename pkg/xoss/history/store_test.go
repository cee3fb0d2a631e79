package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "memory-capacity", "", nil)
	s.Record(ctx, "read-file", "hi.txt (3 bytes)", nil)
	s.Record(ctx, "delete-file", "nope", errors.New("device: no such file: \"nope\""))

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Operation != "delete-file" {
		t.Errorf("entries[0].Operation = %q, want delete-file", entries[0].Operation)
	}
	if entries[0].Error == "" {
		t.Errorf("entries[0].Error should be non-empty for a failed operation")
	}
	if entries[2].Operation != "memory-capacity" || entries[2].Error != "" {
		t.Errorf("entries[2] = %+v, want memory-capacity with no error", entries[2])
	}
}

func TestStore_RecentRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Record(ctx, "memory-capacity", "", nil)
	}

	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}
