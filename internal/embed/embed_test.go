package embed

import (
	"context"
	"testing"
)

func TestStubEmbedderDeterministic(t *testing.T) {
	e := NewStubEmbedder(32)
	ctx := context.Background()

	a, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("embed again: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic output at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestStubEmbedderDiffersByText(t *testing.T) {
	e := NewStubEmbedder(16)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "alpha")
	b, _ := e.Embed(ctx, "beta")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different texts to produce different vectors")
	}
}

func TestStubEmbedderDefaultsDimensions(t *testing.T) {
	e := NewStubEmbedder(0)
	if e.Dimensions() != 384 {
		t.Fatalf("expected default 384 dims, got %d", e.Dimensions())
	}
}

func TestEmbedBatch(t *testing.T) {
	e := NewStubEmbedder(8)
	vecs, err := EmbedBatch(context.Background(), e, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 8 {
			t.Fatalf("vector %d has wrong dims: %d", i, len(v))
		}
	}
}
