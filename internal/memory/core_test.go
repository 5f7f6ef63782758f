package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestCoreStoreAppends(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(nil))
	ctx := context.Background()

	for _, text := range []string{"name is Ana", "name is Ana", "allergic to nuts"} {
		if _, err := m.Core().Store(ctx, "u1", text); err != nil {
			t.Fatalf("store %q: %v", text, err)
		}
		clock.Advance(time.Second)
	}

	facts, err := m.Core().ListAll(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}
	if facts[0].Text != "name is Ana" || facts[2].Text != "allergic to nuts" {
		t.Errorf("unexpected order: %+v", facts)
	}
	if !facts[0].CreatedAt.Equal(testEpoch) {
		t.Errorf("expected created_at %s, got %s", testEpoch, facts[0].CreatedAt)
	}

	other, _ := m.Core().ListAll(ctx, "u2")
	if len(other) != 0 {
		t.Errorf("expected no facts for another owner, got %d", len(other))
	}
}

func TestCoreRetrieveSimilarOrdering(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"query":      {1, 0, 0, 0},
		"very close": {0.9, 0.1, 0, 0},
		"close":      {0.5, 0.5, 0, 0},
		"far":        {0, 0, 1, 0},
	})
	m, clock := newTestMemory(t, emb)
	ctx := context.Background()

	for _, text := range []string{"far", "close", "very close"} {
		if _, err := m.Core().Store(ctx, "u1", text); err != nil {
			t.Fatalf("store: %v", err)
		}
		clock.Advance(time.Minute)
	}

	results, err := m.Core().RetrieveSimilar(ctx, "u1", "query", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "very close" || results[1].Text != "close" {
		t.Errorf("unexpected order: %q, %q", results[0].Text, results[1].Text)
	}
	if results[0].Distance > results[1].Distance {
		t.Errorf("distances not ascending: %v > %v", results[0].Distance, results[1].Distance)
	}
}

func TestCoreRoundTrip(t *testing.T) {
	m, _ := newTestMemory(t, newFakeEmbedder(nil))
	ctx := context.Background()

	for _, text := range []string{"works as a nurse", "has two kids", "plays chess"} {
		if _, err := m.Core().Store(ctx, "u1", text); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	results, err := m.Core().RetrieveSimilar(ctx, "u1", "has two kids", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Text != "has two kids" {
		t.Fatalf("expected exact match first, got %+v", results)
	}
	if math.Abs(results[0].Distance) > 1e-5 {
		t.Errorf("expected distance near 0, got %v", results[0].Distance)
	}
}

func TestCoreTieBreaksOnNewest(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"old": {1, 1, 0, 0},
		"new": {1, 1, 0, 0},
		"q":   {1, 1, 0, 0},
	})
	m, clock := newTestMemory(t, emb)
	ctx := context.Background()

	m.Core().Store(ctx, "u1", "old")
	clock.Advance(time.Hour)
	m.Core().Store(ctx, "u1", "new")

	results, err := m.Core().RetrieveSimilar(ctx, "u1", "q", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Text != "new" {
		t.Errorf("expected newest on tie, got %+v", results)
	}
}

func TestCoreStoreDegradesOnProviderError(t *testing.T) {
	emb := newFakeEmbedder(nil)
	emb.setErr(errors.New("provider down"))
	m, _ := newTestMemory(t, emb)
	ctx := context.Background()

	if _, err := m.Core().Store(ctx, "u1", "speaks Portuguese"); err != nil {
		t.Fatalf("store should degrade, got %v", err)
	}

	facts, _ := m.Core().ListAll(ctx, "u1")
	if len(facts) != 1 {
		t.Fatalf("expected fact to be stored, got %d", len(facts))
	}
	if n := countRows(t, m, "core_fact_embeddings"); n != 0 {
		t.Errorf("expected no embeddings, got %d", n)
	}

	emb.setErr(nil)
	results, err := m.Core().RetrieveSimilar(ctx, "u1", "speaks Portuguese", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("unembedded fact should not be retrievable, got %d", len(results))
	}
}

func TestCoreRetrieveReturnsProviderError(t *testing.T) {
	emb := newFakeEmbedder(nil)
	m, _ := newTestMemory(t, emb)
	ctx := context.Background()

	m.Core().Store(ctx, "u1", "drinks coffee")
	emb.setErr(errors.New("timeout"))

	_, err := m.Core().RetrieveSimilar(ctx, "u1", "coffee", 3)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}

func TestCoreDimensionMismatchIsSticky(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"wrong": {1, 0, 0},
		"right": {1, 0, 0, 0},
	})
	m, _ := newTestMemory(t, emb)
	ctx := context.Background()

	if _, err := m.Core().Store(ctx, "u1", "wrong"); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	calls := emb.callCount()
	if _, err := m.Core().Store(ctx, "u1", "right"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected mismatch to stick, got %v", err)
	}
	if emb.callCount() != calls {
		t.Error("embedder should not be called after a mismatch")
	}

	if n := countRows(t, m, "core_facts"); n != 0 {
		t.Errorf("expected nothing stored, got %d", n)
	}
}

func TestCoreBlankTextSkipsEmbedder(t *testing.T) {
	emb := newFakeEmbedder(nil)
	m, _ := newTestMemory(t, emb)

	if _, err := m.Core().Store(context.Background(), "u1", "   "); err != nil {
		t.Fatalf("store: %v", err)
	}
	if emb.callCount() != 0 {
		t.Errorf("expected no embed calls, got %d", emb.callCount())
	}
	if n := countRows(t, m, "core_facts"); n != 1 {
		t.Errorf("expected blank fact stored without vector, got %d rows", n)
	}
}

func TestCoreZeroVectorIsDegenerate(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{"zero": {0, 0, 0, 0}})
	m, _ := newTestMemory(t, emb)

	if _, err := m.Core().Store(context.Background(), "u1", "zero"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if n := countRows(t, m, "core_fact_embeddings"); n != 0 {
		t.Errorf("zero vector should not be stored, got %d", n)
	}
}

func TestCoreNonFiniteVectorIsDegenerate(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	emb := newFakeEmbedder(map[string][]float32{
		"partly nan": {1, nan, 0, 0},
		"infinite":   {0, inf, 0, 0},
		"tea":        {1, 0, 0, 0},
	})
	m, _ := newTestMemory(t, emb)
	ctx := context.Background()

	for _, text := range []string{"partly nan", "infinite", "tea"} {
		if _, err := m.Core().Store(ctx, "u1", text); err != nil {
			t.Fatalf("store %q: %v", text, err)
		}
	}

	if n := countRows(t, m, "core_facts"); n != 3 {
		t.Errorf("expected all facts stored, got %d", n)
	}
	if n := countRows(t, m, "core_fact_embeddings"); n != 1 {
		t.Errorf("expected only the finite vector stored, got %d", n)
	}

	results, err := m.Core().RetrieveSimilar(ctx, "u1", "tea", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Text != "tea" {
		t.Errorf("expected only 'tea', got %+v", results)
	}
}

func TestCoreGist(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"first":  {1, 0, 0, 0},
		"second": {0, 1, 0, 0},
	})
	m, clock := newTestMemory(t, emb)
	ctx := context.Background()

	gist, err := m.Core().Gist(ctx, "u1")
	if err != nil || gist != nil {
		t.Fatalf("expected nil gist for new owner, got %v, %v", gist, err)
	}

	m.Core().Store(ctx, "u1", "first")
	clock.Advance(time.Second)
	m.Core().Store(ctx, "u1", "second")

	gist, err = m.Core().Gist(ctx, "u1")
	if err != nil {
		t.Fatalf("gist: %v", err)
	}
	if len(gist) != testDims || gist[1] != 1 {
		t.Errorf("expected newest fact vector, got %v", gist)
	}
}
