package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// Hash produces deterministic unit vectors from a text hash. It has no
// semantic quality and exists for offline runs and tests.
type Hash struct {
	dimensions int
}

func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &Hash{dimensions: dimensions}
}

func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	vec := make([]float32, h.dimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
		norm += float64(vec[i]) * float64(vec[i])
	}

	if norm == 0 {
		return vec, nil
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return vec, nil
}

func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
