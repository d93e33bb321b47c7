package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// LocalEmbedder is a deterministic, offline bag-of-words embedder. Tokens are
// hashed into a fixed number of buckets and the resulting vector is
// L2-normalized, so cosine similarity behaves sensibly for overlap-based
// relevance. It needs no network or API key, which also makes retrieval tests
// reproducible.
type LocalEmbedder struct {
	dimension int
}

const defaultLocalDimension = 256

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// NewLocalEmbedder constructs a LocalEmbedder.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = defaultLocalDimension
	}
	return &LocalEmbedder{dimension: dimension}
}

// Name identifies the backend.
func (e *LocalEmbedder) Name() string { return "local" }

// Dimension returns the vector dimensionality.
func (e *LocalEmbedder) Dimension() int { return e.dimension }

// Embed hashes tokens into buckets and normalizes each vector.
func (e *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *LocalEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	for _, token := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
