package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

func serializeEmbedding(embedding []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(embedding)
}

// decodeEmbedding reverses serializeEmbedding (little-endian float32).
func decodeEmbedding(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

// vectorizer is the only path from text to stored vectors. It applies the
// embed timeout, drops blank input, and enforces the configured dimension.
type vectorizer struct {
	embedder Embedder
	dims     int
	timeout  time.Duration

	mismatch     atomic.Bool
	mismatchOnce sync.Once
}

func newVectorizer(e Embedder, dims int, timeout time.Duration) *vectorizer {
	return &vectorizer{embedder: e, dims: dims, timeout: timeout}
}

// embed returns nil with no error when there is nothing to embed: no
// embedder, blank text, or an empty vector from the provider.
func (v *vectorizer) embed(ctx context.Context, text string) ([]float32, error) {
	if v.embedder == nil {
		return nil, nil
	}
	if v.mismatch.Load() {
		return nil, ErrDimensionMismatch
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	vec, err := v.embedder.Embed(ctx, text)
	if err != nil {
		metrics.EmbedFailures.WithLabelValues("provider").Inc()
		return nil, &ProviderError{Op: "embed", Err: err}
	}

	return v.check(vec)
}

// embedBatch embeds texts in one provider call. Slots for blank texts or
// unusable vectors come back nil.
func (v *vectorizer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if v.embedder == nil || len(texts) == 0 {
		return out, nil
	}
	if v.mismatch.Load() {
		return nil, ErrDimensionMismatch
	}

	var idx []int
	var batch []string
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
	}
	if len(batch) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	vecs, err := v.embedder.EmbedBatch(ctx, batch)
	if err != nil {
		metrics.EmbedFailures.WithLabelValues("provider").Inc()
		return nil, &ProviderError{Op: "embed batch", Err: err}
	}
	if len(vecs) != len(batch) {
		metrics.EmbedFailures.WithLabelValues("provider").Inc()
		return nil, &ProviderError{Op: "embed batch", Err: fmt.Errorf("expected %d vectors, got %d", len(batch), len(vecs))}
	}

	for j, vec := range vecs {
		checked, err := v.check(vec)
		if err != nil {
			if IsConfigurationError(err) {
				return nil, err
			}
			continue
		}
		out[idx[j]] = checked
	}

	return out, nil
}

func (v *vectorizer) check(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		metrics.EmbedFailures.WithLabelValues("empty").Inc()
		return nil, nil
	}

	if len(vec) != v.dims {
		v.mismatch.Store(true)
		v.mismatchOnce.Do(func() {
			logger.Error("embedding dimension mismatch, refusing further embeddings",
				"expected", v.dims, "got", len(vec))
		})
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, v.dims, len(vec))
	}

	nonZero := false
	for _, x := range vec {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, v.degenerate()
		}
		if x != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return nil, v.degenerate()
	}

	return vec, nil
}

// degenerate covers all-zero vectors and any NaN or Inf component; cosine
// distance against them is undefined.
func (v *vectorizer) degenerate() error {
	metrics.EmbedFailures.WithLabelValues("degenerate").Inc()
	return &ProviderError{Op: "embed", Err: errDegenerateVector}
}
