package memory

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

// Deduplicator removes episodes that repeat something already held in the
// core or working tiers, or that a newer episode supersedes. It is
// best-effort: delete failures are logged and skipped.
type Deduplicator struct {
	m  *Memory
	wg sync.WaitGroup
}

// Run deduplicates one owner's episodes and returns how many were deleted.
// An error means the candidate scan itself failed; nothing was deleted.
func (d *Deduplicator) Run(ctx context.Context, ownerID string) (int, error) {
	ctx, span := tracer.Start(ctx, "memory.dedup", trace.WithAttributes(attribute.String("owner", ownerID)))
	defer span.End()

	maxDistance := 1 - d.m.opts.DedupThreshold

	marked, err := d.mark(ctx, ownerID, maxDistance)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	deleted := d.deleteMarked(ctx, marked)
	span.SetAttributes(attribute.Int("deleted", deleted))

	if deleted > 0 {
		metrics.DedupDeleted.Add(float64(deleted))
		logger.Info("duplicate episodes removed", "owner", ownerID, "deleted", deleted)
	}

	return deleted, nil
}

// RunAsync runs a pass in the background; failures are only logged.
func (d *Deduplicator) RunAsync(ownerID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.Run(context.Background(), ownerID); err != nil {
			logger.Error("dedup failed", "owner", ownerID, "error", err)
		}
	}()
}

// Wait blocks until background passes started by RunAsync have finished.
func (d *Deduplicator) Wait() {
	d.wg.Wait()
}

// RunAll deduplicates every owner with episodes inside the recent window.
func (d *Deduplicator) RunAll(ctx context.Context) (int, error) {
	since := unixNano(d.m.now().Add(-d.m.opts.DedupWindow))

	rows, err := d.m.db().QueryContext(ctx, queryActiveOwners, since)
	if err != nil {
		return 0, err
	}
	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			rows.Close()
			return 0, err
		}
		owners = append(owners, owner)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	total := 0
	for _, owner := range owners {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := d.Run(ctx, owner)
		if err != nil {
			logger.Error("dedup failed, continuing", "owner", owner, "error", err)
			continue
		}
		total += n
	}

	return total, nil
}

// mark collects every episode id to delete before anything is removed, so
// the result does not depend on deletion order.
func (d *Deduplicator) mark(ctx context.Context, ownerID string, maxDistance float64) ([]int64, error) {
	seen := make(map[int64]bool)
	var marked []int64
	add := func(ids []int64) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				marked = append(marked, id)
			}
		}
	}

	gist, err := d.m.core.gistBlob(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load core gist: %w", err)
	}
	current, err := d.m.working.currentBlob(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load working current: %w", err)
	}

	for _, ref := range [][]byte{gist, current} {
		if ref == nil {
			continue
		}
		ids, err := d.queryIDs(ctx, queryEpisodesNear, ownerID, ref, maxDistance)
		if err != nil {
			return nil, fmt.Errorf("cross-tier scan: %w", err)
		}
		add(ids)
	}

	since := unixNano(d.m.now().Add(-d.m.opts.DedupWindow))
	ids, err := d.queryIDs(ctx, querySupersededEpisodes, ownerID, since, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("self scan: %w", err)
	}
	add(ids)

	return marked, nil
}

func (d *Deduplicator) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := d.m.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *Deduplicator) deleteMarked(ctx context.Context, ids []int64) int {
	deleted := 0
	size := d.m.opts.DedupBatchSize

	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batch := ids[start:end]

		n, err := d.deleteBatch(ctx, batch)
		if err == nil {
			deleted += n
			continue
		}

		logger.Warn("dedup batch failed, retrying individually", "size", len(batch), "error", err)
		for _, id := range batch {
			n, err := d.deleteBatch(ctx, []int64{id})
			if err != nil {
				logger.Error("failed to delete duplicate episode", "episode", id, "error", err)
				continue
			}
			deleted += n
		}
	}

	return deleted
}

func (d *Deduplicator) deleteBatch(ctx context.Context, ids []int64) (int, error) {
	tx, err := d.m.db().BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := deleteIn(ctx, tx, "episode_embeddings", "episode_id", ids); err != nil {
		return 0, err
	}
	n, err := deleteIn(ctx, tx, "episodes", "id", ids)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}
