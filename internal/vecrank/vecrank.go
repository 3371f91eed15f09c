// Package vecrank ranks Fragments by cosine similarity to a query vector,
// via an exact brute-force scan over every embedded Fragment.
package vecrank

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ctxcache/contextcache/internal/store"
)

// Hit is a single vector match: a fragment identifier and its cosine
// similarity to the query vector.
type Hit struct {
	FragmentID int64
	Score      float64
}

// Search scans every Fragment with a stored embedding, computes cosine
// similarity against query, and returns up to limit hits ordered by
// similarity descending, ties broken by insertion (scan) order.
// Fragments with a zero-norm embedding are excluded.
func Search(ctx context.Context, s store.Store, query []float32, limit int) ([]Hit, error) {
	frags, err := s.ListFragmentsWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing embedded fragments: %w", err)
	}

	hits := make([]Hit, 0, len(frags))
	for _, f := range frags {
		sim, ok := cosineSimilarity(query, f.Embedding)
		if !ok {
			continue
		}
		hits = append(hits, Hit{FragmentID: f.ID, Score: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// cosineSimilarity returns (a·b)/(‖a‖‖b‖) and false if either vector has
// zero norm or the vectors differ in length.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
