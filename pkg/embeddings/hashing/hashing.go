// Package hashing provides a dependency-free Embedder that maps text to a
// fixed-size vector by feature hashing its tokens. It needs no model server
// and is deterministic, which makes it the default for local setups.
package hashing

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/papercomputeco/strata/pkg/embeddings"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 256

// Embedder hashes lower-cased word tokens into buckets.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns an L2-normalized token-count vector. Empty text yields a
// vector with a single unit component so it is never all zeros.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		sign := float32(1)
		if h&(1<<63) != 0 {
			sign = -1
		}
		vec[h%uint64(e.dimensions)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return vec, nil
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
