package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestBackfillEmbedsMissing(t *testing.T) {
	emb := newFakeEmbedder(nil)
	emb.setErr(errors.New("provider down"))
	m, _ := newTestMemory(t, emb)
	ctx := context.Background()

	seedOwner(t, m, "u1")
	for i := 0; i < 4; i++ {
		m.Episodic().Store(ctx, "u1", fmt.Sprintf("extra %d", i), nil)
	}

	if n := countRows(t, m, "episode_embeddings"); n != 0 {
		t.Fatalf("expected no embeddings yet, got %d", n)
	}

	emb.setErr(nil)
	added, err := m.Backfill(ctx, 2)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if added != 7 {
		t.Errorf("expected 7 embeddings added, got %d", added)
	}

	results, err := m.Core().RetrieveSimilar(ctx, "u1", "u1 core", 1)
	if err != nil || len(results) != 1 {
		t.Errorf("expected backfilled fact to be retrievable, got %v, %v", results, err)
	}

	again, _ := m.Backfill(ctx, 2)
	if again != 0 {
		t.Errorf("expected nothing left to backfill, got %d", again)
	}
}

func TestBackfillWithoutEmbedder(t *testing.T) {
	m, _ := newTestMemory(t, nil)

	n, err := m.Backfill(context.Background(), 10)
	if err != nil || n != 0 {
		t.Errorf("expected no-op, got %d, %v", n, err)
	}
}
