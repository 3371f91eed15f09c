// Package hybrid fuses lexical and vector search over Fragments into a
// single ranked result list.
package hybrid

import (
	"context"
	"fmt"

	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/lexrank"
	"github.com/ctxcache/contextcache/internal/rrf"
	"github.com/ctxcache/contextcache/internal/store"
	"github.com/ctxcache/contextcache/internal/vecrank"
)

// Result is one hydrated hit: the owning file's relative path, the
// fragment's position and text, and a [0,1] display score.
type Result struct {
	FragmentID int64
	Path       string
	Position   int
	Text       string
	Score      float64
}

// Options configures a single Search call.
type Options struct {
	Limit int // result count, default 10
	K     int // RRF fusion constant, default rrf.DefaultK (60)
}

// Engine runs hybrid search against a Store, optionally embedding query
// text via an injected Embedder.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
}

// NewEngine returns an Engine without an embedder: Search then has no query
// vector and fuses the lexical results with an empty vector list. No API
// accepts an externally computed query vector.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// NewEngineWithEmbedder returns an Engine that embeds query text itself.
func NewEngineWithEmbedder(s store.Store, embedder embed.Embedder) *Engine {
	return &Engine{store: s, embedder: embedder}
}

// Search embeds query (if an Embedder was supplied), runs the Lexical and
// Vector Rankers at 2*limit each, fuses their ranked fragment-id lists with
// Reciprocal Rank Fusion, takes the top limit, min-max normalizes their
// fused scores into [0,1] (the top result always 1.0), and hydrates each
// surviving identifier through the Store. Hydration misses are skipped, not
// reported as errors.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	k := opts.K
	if k <= 0 {
		k = rrf.DefaultK
	}

	lexHits, err := lexrank.Search(ctx, e.store, query, 2*limit)
	if err != nil {
		return nil, fmt.Errorf("lexical ranking: %w", err)
	}

	var vecHits []vecrank.Hit
	if e.embedder != nil {
		qvec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		vecHits, err = vecrank.Search(ctx, e.store, qvec, 2*limit)
		if err != nil {
			return nil, fmt.Errorf("vector ranking: %w", err)
		}
	}

	lexIDs := make([]int64, len(lexHits))
	for i, h := range lexHits {
		lexIDs[i] = h.FragmentID
	}
	vecIDs := make([]int64, len(vecHits))
	for i, h := range vecHits {
		vecIDs[i] = h.FragmentID
	}

	fused := rrf.Fuse([][]int64{lexIDs, vecIDs}, k)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	normalized := normalizeScores(fused)

	results := make([]Result, 0, len(fused))
	for i, entry := range fused {
		frag, path, err := e.store.GetFragment(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("hydrating fragment %d: %w", entry.ID, err)
		}
		if frag == nil {
			continue
		}
		results = append(results, Result{
			FragmentID: frag.ID,
			Path:       path,
			Position:   frag.Position,
			Text:       frag.Text,
			Score:      normalized[i],
		})
	}

	return results, nil
}

// normalizeScores min-max normalizes fused scores into [0,1]. All-equal
// scores map to 1.0; the top (first) entry always receives 1.0.
func normalizeScores(fused []rrf.Result) []float64 {
	out := make([]float64, len(fused))
	if len(fused) == 0 {
		return out
	}

	min, max := fused[0].Score, fused[0].Score
	for _, f := range fused {
		if f.Score < min {
			min = f.Score
		}
		if f.Score > max {
			max = f.Score
		}
	}

	spread := max - min
	for i, f := range fused {
		if spread == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (f.Score - min) / spread
	}
	out[0] = 1.0
	return out
}
