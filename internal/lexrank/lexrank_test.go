package lexrank

import (
	"context"
	"testing"

	"github.com/ctxcache/contextcache/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSearchFindsMatchingFragment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, err := s.UpsertFile(ctx, "notes/a.md", "fp1")
	if err != nil {
		t.Fatalf("upserting file: %v", err)
	}
	err = s.ReplaceFragments(ctx, f.ID, []store.Fragment{
		{Position: 0, Text: "kubernetes deployment rollback steps", Original: "kubernetes deployment rollback steps"},
	})
	if err != nil {
		t.Fatalf("replacing fragments: %v", err)
	}

	hits, err := Search(ctx, s, "kubernetes", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
}

func TestSearchNoMatchReturnsEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, err := s.UpsertFile(ctx, "notes/a.md", "fp1")
	if err != nil {
		t.Fatalf("upserting file: %v", err)
	}
	if err := s.ReplaceFragments(ctx, f.ID, []store.Fragment{
		{Position: 0, Text: "unrelated content", Original: "unrelated content"},
	}); err != nil {
		t.Fatalf("replacing fragments: %v", err)
	}

	hits, err := Search(ctx, s, "zzzznonexistentzzzz", 10)
	if err != nil {
		t.Fatalf("expected no error on a no-match query: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits, got %d", len(hits))
	}
}
