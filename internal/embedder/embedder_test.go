package embedder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNewProviders(t *testing.T) {
	e, err := New(Config{})
	if err != nil || e != nil {
		t.Errorf("expected nil embedder for empty provider, got %v, %v", e, err)
	}

	if _, err := New(Config{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	e, err = New(Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	o, ok := e.(*ollama)
	if !ok {
		t.Fatalf("expected *ollama, got %T", e)
	}
	if o.baseURL != "http://localhost:11434" || o.model != "nomic-embed-text" {
		t.Errorf("unexpected defaults %s %s", o.baseURL, o.model)
	}

	e, err = New(Config{Provider: "hash", Dimensions: 8, CacheSize: 1 << 10, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, ok := e.(*Cached); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var req ollamaRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Model != "test-model" || req.Prompt != "hello" {
				t.Errorf("unexpected request %+v", req)
			}
			json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{0.1, 0.2, 0.3}})
		case "/api/embed":
			var req ollamaBatchRequest
			json.NewDecoder(r.Body).Decode(&req)
			out := ollamaBatchResponse{}
			for range req.Input {
				out.Embeddings = append(out.Embeddings, []float32{1, 0, 0})
			}
			json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := newOllama(srv.URL, "test-model")
	ctx := context.Background()

	vec, err := o.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector %v", vec)
	}

	vecs, err := o.EmbedBatch(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("expected 2 vectors, got %d", len(vecs))
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newOllama(srv.URL, "missing").Embed(context.Background(), "x"); err == nil {
		t.Error("expected error on non-200 status")
	}
}

func TestHashDeterministicUnitVectors(t *testing.T) {
	h := NewHash(16)
	ctx := context.Background()

	a, _ := h.Embed(ctx, "same text")
	b, _ := h.Embed(ctx, "same text")
	c, _ := h.Embed(ctx, "other text")

	if len(a) != 16 {
		t.Fatalf("expected 16 dimensions, got %d", len(a))
	}

	var norm float64
	differs := false
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
		if a[i] != c[i] {
			differs = true
		}
		norm += float64(a[i]) * float64(a[i])
	}

	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("expected unit vector, got norm %v", norm)
	}
	if !differs {
		t.Error("different texts should give different vectors")
	}
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return []float32{1, 2, 3}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{4, 5, 6}
	}
	return out, nil
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 1<<10, time.Minute)
	if err != nil {
		t.Fatalf("new cached: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	c.Wait()

	vec, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected cache hit, provider called %d times", inner.calls)
	}
	if len(vec) != 3 {
		t.Errorf("unexpected cached vector %v", vec)
	}

	vecs, err := c.EmbedBatch(ctx, []string{"hello", "world"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected one batch call for the miss, got %d total calls", inner.calls)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 4 {
		t.Errorf("unexpected batch result %v", vecs)
	}
}
