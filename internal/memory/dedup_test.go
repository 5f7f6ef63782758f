package memory

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func dedupVectors() map[string][]float32 {
	return map[string][]float32{
		"met Sam for lunch":       {1, 0, 0, 0},
		"had lunch with Sam":      {1, 0.01, 0, 0},
		"lunch with Sam again":    {1, 0, 0.01, 0},
		"ran a half marathon":     {0, 1, 0, 0},
		"moved to Porto":          {0, 0, 1, 0},
		"lives in Porto":          {0, 0, 1, 0.01},
		"learning to play guitar": {0, 0, 0, 1},
		"guitar practice":         {0, 0.01, 0, 1},
	}
}

func TestDedupDeletesOlderDuplicate(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	old, _ := m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	clock.Advance(time.Hour)
	newer, _ := m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)
	m.Episodic().Store(ctx, "u1", "ran a half marathon", nil)

	deleted, err := m.Deduplicator().Run(ctx, "u1")
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	episodes, _ := m.Episodic().List(ctx, "u1")
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}
	for _, ep := range episodes {
		if ep.ID == old.ID {
			t.Error("older duplicate should have been deleted")
		}
	}
	if episodes[0].ID != newer.ID {
		t.Errorf("expected newer duplicate to survive, got %+v", episodes[0])
	}
	if n := countRows(t, m, "episode_embeddings"); n != 2 {
		t.Errorf("expected 2 embeddings, got %d", n)
	}
}

func TestDedupTieBreakOnID(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"same a": {0.5, 0.5, 0, 0},
		"same b": {0.5, 0.5, 0, 0},
	})
	m, _ := newTestMemory(t, emb)
	ctx := context.Background()

	// the clock does not move, so both share created_at
	first, _ := m.Episodic().Store(ctx, "u1", "same a", nil)
	second, _ := m.Episodic().Store(ctx, "u1", "same b", nil)

	if _, err := m.Deduplicator().Run(ctx, "u1"); err != nil {
		t.Fatalf("dedup: %v", err)
	}

	episodes, _ := m.Episodic().List(ctx, "u1")
	if len(episodes) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(episodes))
	}
	if episodes[0].ID != second.ID || first.ID > second.ID {
		t.Errorf("expected the higher id %d to survive, got %d", second.ID, episodes[0].ID)
	}
}

func TestDedupChainKeepsNewest(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	clock.Advance(time.Minute)
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)
	clock.Advance(time.Minute)
	m.Episodic().Store(ctx, "u1", "lunch with Sam again", nil)

	deleted, _ := m.Deduplicator().Run(ctx, "u1")
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	episodes, _ := m.Episodic().List(ctx, "u1")
	if len(episodes) != 1 || episodes[0].Text != "lunch with Sam again" {
		t.Errorf("expected newest to survive, got %+v", episodes)
	}
}

func TestDedupIdempotent(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	m.Core().Store(ctx, "u1", "lives in Porto")
	m.Episodic().Store(ctx, "u1", "moved to Porto", nil)
	m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	clock.Advance(time.Minute)
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)

	first, err := m.Deduplicator().Run(ctx, "u1")
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if first != 2 {
		t.Errorf("expected 2 deleted on first run, got %d", first)
	}

	second, err := m.Deduplicator().Run(ctx, "u1")
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if second != 0 {
		t.Errorf("expected second run to delete nothing, got %d", second)
	}
}

func TestDedupAgainstCoreAndWorking(t *testing.T) {
	m, _ := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	m.Core().Store(ctx, "u1", "lives in Porto")
	m.Working().Store(ctx, "u1", "learning to play guitar")

	m.Episodic().Store(ctx, "u1", "moved to Porto", nil)
	m.Episodic().Store(ctx, "u1", "guitar practice", nil)
	kept, _ := m.Episodic().Store(ctx, "u1", "ran a half marathon", nil)

	deleted, err := m.Deduplicator().Run(ctx, "u1")
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	episodes, _ := m.Episodic().List(ctx, "u1")
	if len(episodes) != 1 || episodes[0].ID != kept.ID {
		t.Errorf("expected only the unrelated episode, got %+v", episodes)
	}

	// other tiers are never touched
	core, _ := m.Core().ListAll(ctx, "u1")
	history, _ := m.Working().History(ctx, "u1")
	if len(core) != 1 || len(history) != 1 {
		t.Errorf("core or working changed: %d, %d", len(core), len(history))
	}
}

func TestDedupOnlyConsidersRecentCandidates(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	clock.Set(testEpoch.Add(-72 * time.Hour))
	m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	clock.Set(testEpoch.Add(-48 * time.Hour))
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)
	clock.Set(testEpoch)

	deleted, _ := m.Deduplicator().Run(ctx, "u1")
	if deleted != 0 {
		t.Errorf("expected old duplicates left alone, got %d deleted", deleted)
	}

	// a recent candidate is compared against the whole table
	clock.Set(testEpoch.Add(-time.Hour))
	m.Episodic().Store(ctx, "u1", "lunch with Sam again", nil)
	clock.Set(testEpoch)

	deleted, _ = m.Deduplicator().Run(ctx, "u1")
	if deleted != 0 {
		t.Errorf("newest episode has no newer duplicate, got %d deleted", deleted)
	}
}

func TestDedupRecentCandidateSupersededByNewer(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	clock.Set(testEpoch.Add(-2 * time.Hour))
	m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	clock.Set(testEpoch.Add(-time.Hour))
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)
	clock.Set(testEpoch)

	deleted, _ := m.Deduplicator().Run(ctx, "u1")
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestDedupRunAll(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	for _, owner := range []string{"a", "b"} {
		m.Episodic().Store(ctx, owner, "met Sam for lunch", nil)
		clock.Advance(time.Second)
		m.Episodic().Store(ctx, owner, "had lunch with Sam", nil)
	}
	// owners never share duplicates
	m.Episodic().Store(ctx, "c", "met Sam for lunch", nil)

	deleted, err := m.Deduplicator().RunAll(ctx)
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted across owners, got %d", deleted)
	}

	c, _ := m.Episodic().List(ctx, "c")
	if len(c) != 1 {
		t.Errorf("owner c should keep its episode, got %d", len(c))
	}
}

func TestDedupAsync(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	clock.Advance(time.Second)
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)

	m.Deduplicator().RunAsync("u1")
	m.Deduplicator().Wait()

	if n := countRows(t, m, "episodes"); n != 1 {
		t.Errorf("expected 1 episode after async dedup, got %d", n)
	}
}

func TestDedupFailedDeleteDoesNotBlockBatch(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	ctx := context.Background()

	blocked, _ := m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	other, _ := m.Episodic().Store(ctx, "u1", "moved to Porto", nil)
	clock.Advance(time.Hour)
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)
	m.Episodic().Store(ctx, "u1", "lives in Porto", nil)

	trigger := fmt.Sprintf(`
		CREATE TRIGGER keep_episode BEFORE DELETE ON episodes
		WHEN old.id = %d
		BEGIN
			SELECT RAISE(ABORT, 'episode is pinned');
		END`, blocked.ID)
	if _, err := m.db().Exec(trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	deleted, err := m.Deduplicator().Run(ctx, "u1")
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	episodes, _ := m.Episodic().List(ctx, "u1")
	ids := map[int64]bool{}
	for _, ep := range episodes {
		ids[ep.ID] = true
	}
	if !ids[blocked.ID] {
		t.Error("pinned episode should survive its failed delete")
	}
	if ids[other.ID] {
		t.Error("the other duplicate should still be deleted")
	}
	if len(episodes) != 3 {
		t.Errorf("expected 3 episodes left, got %d", len(episodes))
	}

	// the failed delete rolled back, so the pinned episode keeps its vector
	if n := countRows(t, m, "episode_embeddings"); n != 3 {
		t.Errorf("expected 3 embeddings, got %d", n)
	}
}

func TestDedupDeletesAcrossBatches(t *testing.T) {
	m, clock := newTestMemory(t, newFakeEmbedder(dedupVectors()))
	m.opts.DedupBatchSize = 1
	ctx := context.Background()

	m.Episodic().Store(ctx, "u1", "met Sam for lunch", nil)
	m.Episodic().Store(ctx, "u1", "moved to Porto", nil)
	m.Episodic().Store(ctx, "u1", "learning to play guitar", nil)
	clock.Advance(time.Hour)
	m.Episodic().Store(ctx, "u1", "had lunch with Sam", nil)
	m.Episodic().Store(ctx, "u1", "lives in Porto", nil)
	m.Episodic().Store(ctx, "u1", "guitar practice", nil)

	deleted, err := m.Deduplicator().Run(ctx, "u1")
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}

	episodes, _ := m.Episodic().List(ctx, "u1")
	want := map[string]bool{"had lunch with Sam": true, "lives in Porto": true, "guitar practice": true}
	if len(episodes) != len(want) {
		t.Fatalf("expected %d survivors, got %d", len(want), len(episodes))
	}
	for _, ep := range episodes {
		if !want[ep.Text] {
			t.Errorf("unexpected survivor %q", ep.Text)
		}
	}
}
