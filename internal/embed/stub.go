package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// StubEmbedder derives a deterministic pseudo-embedding from a text's
// SHA-256 digest. It is used only in tests, where a real model would make
// assertions non-reproducible and slow — grounded on spec.md §8 scenario
// S1's requirement that embeddings be deterministic for a fixed input.
type StubEmbedder struct {
	dims int
}

// NewStubEmbedder returns a StubEmbedder producing vectors of the given
// dimensionality.
func NewStubEmbedder(dims int) *StubEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &StubEmbedder{dims: dims}
}

// Embed returns a deterministic unit-ish vector for text: the SHA-256
// digest is repeated and reinterpreted as uint32s, scaled into [-1, 1].
func (e *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, e.dims)
	for i := range vec {
		b := sum[(i*4)%len(sum) : (i*4)%len(sum)+4]
		if len(b) < 4 {
			b = sum[:4]
		}
		u := binary.LittleEndian.Uint32(b)
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return vec, nil
}

// Dimensions returns the configured vector size.
func (e *StubEmbedder) Dimensions() int {
	return e.dims
}
