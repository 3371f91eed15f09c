package hybrid

import (
	"context"
	"testing"

	"github.com/ctxcache/contextcache/internal/embed"
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

func seedFragment(t *testing.T, s *store.SQLiteStore, path, text string, embedding []float32) {
	t.Helper()
	ctx := context.Background()
	f, err := s.UpsertFile(ctx, path, "fp-"+path)
	if err != nil {
		t.Fatalf("upserting file %q: %v", path, err)
	}
	if err := s.ReplaceFragments(ctx, f.ID, []store.Fragment{
		{Position: 0, Text: text, Original: text, Embedding: embedding},
	}); err != nil {
		t.Fatalf("replacing fragments for %q: %v", path, err)
	}
}

func TestSearchTopScoreIsAlwaysOne(t *testing.T) {
	s := newTestStore(t)
	seedFragment(t, s, "a.md", "kubernetes rollback guide", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	seedFragment(t, s, "b.md", "unrelated gardening tips", []float32{0, 1, 0, 0, 0, 0, 0, 0})

	engine := NewEngine(s)
	results, err := engine.Search(context.Background(), "kubernetes", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Score != 1.0 {
		t.Fatalf("expected top result score 1.0, got %.4f", results[0].Score)
	}
}

func TestSearchScoresAreNonIncreasing(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		seedFragment(t, s, string(rune('a'+i))+".md", "kubernetes topic content here", nil)
	}

	engine := NewEngine(s)
	results, err := engine.Search(context.Background(), "kubernetes", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("expected non-increasing scores, got %.4f after %.4f at index %d", results[i].Score, results[i-1].Score, i)
		}
	}
}

func TestSearchFallsBackToLexicalWithoutEmbedder(t *testing.T) {
	s := newTestStore(t)
	seedFragment(t, s, "a.md", "deployment rollback steps", nil)

	engine := NewEngine(s)
	results, err := engine.Search(context.Background(), "rollback", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search without embedder should not error: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected lexical-only results")
	}
}

func TestSearchHybridUsesBothRankers(t *testing.T) {
	s := newTestStore(t)
	stub := embed.NewStubEmbedder(8)
	ctx := context.Background()

	vec, err := stub.Embed(ctx, "deployment rollback steps")
	if err != nil {
		t.Fatalf("embedding seed text: %v", err)
	}
	seedFragment(t, s, "a.md", "deployment rollback steps", vec)
	seedFragment(t, s, "b.md", "completely different gardening content", nil)

	engine := NewEngineWithEmbedder(s, stub)
	results, err := engine.Search(ctx, "deployment rollback steps", Options{Limit: 10})
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results from hybrid search")
	}
	if results[0].Path != "a.md" {
		t.Fatalf("expected a.md to rank first, got %q", results[0].Path)
	}
}

func TestSearchOnEmptyStoreReturnsNoResults(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)

	results, err := engine.Search(context.Background(), "nonexistent", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search on empty store should not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results from empty store, got %d", len(results))
	}
}
