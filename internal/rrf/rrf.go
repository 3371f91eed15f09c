// Package rrf implements Reciprocal Rank Fusion over an arbitrary number of
// ranked identifier lists.
package rrf

import (
	"math"
	"sort"
)

// DefaultK is the fusion constant used when a caller doesn't override it.
const DefaultK = 60

// Result is one fused entry: an identifier and its combined RRF score.
type Result struct {
	ID    int64
	Score float64
}

// Fuse merges any number of ranked identifier lists into a single list
// ordered by fused score descending, using
//
//	fused(id) = Σ 1/(K + rank(id))
//
// over every list where id appears (rank is the zero-based position in
// that list; lists where id is absent contribute nothing). Ties are broken
// by the order identifiers were first seen across the input lists — this
// makes a single-list input return its input order unchanged.
func Fuse(lists [][]int64, k int) []Result {
	if k <= 0 {
		k = DefaultK
	}

	scores := make(map[int64]float64)
	order := make([]int64, 0)
	seen := make(map[int64]bool)

	for _, list := range lists {
		for rank, id := range list {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(k+rank)
		}
	}

	insertionIndex := make(map[int64]int, len(order))
	for i, id := range order {
		insertionIndex[id] = i
	}

	results := make([]Result, len(order))
	for i, id := range order {
		results[i] = Result{ID: id, Score: scores[id]}
	}

	sort.SliceStable(results, func(i, j int) bool {
		delta := results[i].Score - results[j].Score
		if math.Abs(delta) > 1e-12 {
			return delta > 0
		}
		return insertionIndex[results[i].ID] < insertionIndex[results[j].ID]
	})

	return results
}
