// Package embed generates dense vector embeddings for fragments and
// exchanges, either from a locally loaded transformer or a hosted
// OpenAI-compatible API.
package embed

import (
	"context"
	"fmt"
)

// Embedder generates an embedding vector for a single piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedBatch is a small convenience wrapper for embedding several texts
// against any Embedder, in order. The note and conversation indexers do not
// use it; they call Embed once per text.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		out[i] = v
	}
	return out, nil
}
