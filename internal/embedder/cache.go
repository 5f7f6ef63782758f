package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/bowerhall/tiermem/internal/memory"
)

// Cached memoises embeddings by text. Cost is counted in vector components,
// so maxCost bounds the number of cached floats.
type Cached struct {
	inner memory.Embedder
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCached(inner memory.Embedder, maxCost int64, ttl time.Duration) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: max(maxCost/64, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	return &Cached{inner: inner, cache: cache, ttl: ttl}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.set(text, vec)
	return vec, nil
}

// EmbedBatch only sends the texts that miss the cache to the provider.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missIdx []int
	var misses []string
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		misses = append(misses, t)
	}

	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(misses) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(misses), len(vecs))
	}

	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.set(misses[j], vec)
	}

	return out, nil
}

func (c *Cached) set(text string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(text, vec, int64(len(vec)), c.ttl)
		return
	}
	c.cache.Set(text, vec, int64(len(vec)))
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() {
	c.cache.Close()
}
