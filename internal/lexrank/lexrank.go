// Package lexrank runs keyword queries against the store's BM25 lexical
// shadow table.
package lexrank

import (
	"context"
	"fmt"

	"github.com/ctxcache/contextcache/internal/store"
)

// Hit is a single lexical match: a fragment identifier and its BM25 score
// (smaller is better, matching SQLite FTS5's convention).
type Hit struct {
	FragmentID int64
	Score      float64
}

// Search runs query against the lexical shadow table, returning up to limit
// hits ordered by score ascending. Never errors on a query that matches
// nothing.
func Search(ctx context.Context, s store.Store, query string, limit int) ([]Hit, error) {
	lexHits, err := s.SearchLexical(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]Hit, len(lexHits))
	for i, h := range lexHits {
		hits[i] = Hit{FragmentID: h.FragmentID, Score: h.Score}
	}
	return hits, nil
}
