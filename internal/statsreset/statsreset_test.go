package statsreset

import (
	"context"
	"testing"

	"github.com/ctxcache/contextcache/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(store.Config{DBPath: ":memory:", EmbeddingDimensions: 8})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStatsReflectsStoredCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceFileWithFragments(ctx, "a.md", "fp1", []store.Fragment{
		{Position: 0, Text: "hello", Original: "hello", CharStart: 0},
	}); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	counts, err := Stats(ctx, s)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts.Files != 1 {
		t.Fatalf("expected 1 file, got %d", counts.Files)
	}
	if counts.Fragments != 1 {
		t.Fatalf("expected 1 fragment, got %d", counts.Fragments)
	}
}

func TestResetClearsAllRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceFileWithFragments(ctx, "a.md", "fp1", []store.Fragment{
		{Position: 0, Text: "hello", Original: "hello", CharStart: 0},
	}); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	if err := Reset(ctx, s); err != nil {
		t.Fatalf("reset: %v", err)
	}

	counts, err := Stats(ctx, s)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts.Files != 0 || counts.Fragments != 0 {
		t.Fatalf("expected zeroed counts after reset, got %+v", counts)
	}
}
