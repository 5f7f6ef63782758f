package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

// DefaultSweepBatch is the number of expired episodes deleted per transaction.
const DefaultSweepBatch = 1000

// EpisodicTier is an append-only log of events that expire after the
// configured lifetime.
type EpisodicTier struct {
	m *Memory
}

func (t *EpisodicTier) Store(ctx context.Context, ownerID, text string, metadata map[string]string) (*Episode, error) {
	blob, err := t.m.embedOrDegrade(ctx, "episodic", ownerID, text)
	if err != nil {
		return nil, err
	}

	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	createdAt := t.m.now()

	tx, err := t.m.db().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryInsertEpisode, ownerID, text, meta, unixNano(createdAt))
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if blob != nil {
		if _, err := tx.ExecContext(ctx, queryInsertEpisodeEmbedding, id, blob); err != nil {
			return nil, fmt.Errorf("insert episode embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.EntriesStored.WithLabelValues("episodic").Inc()

	return &Episode{
		Entry:    Entry{ID: id, OwnerID: ownerID, Text: text, CreatedAt: createdAt.UTC()},
		Metadata: metadata,
	}, nil
}

// RetrieveSimilar returns up to k episodes created within maxAge, closest to
// query first. A non-positive maxAge means the episode lifetime.
func (t *EpisodicTier) RetrieveSimilar(ctx context.Context, ownerID, query string, k int, maxAge time.Duration) ([]Episode, error) {
	if k <= 0 {
		return nil, nil
	}

	blob, err := t.m.queryBlob(ctx, query)
	if err != nil || blob == nil {
		return nil, err
	}

	if maxAge <= 0 {
		maxAge = t.m.opts.EpisodeLifetime
	}
	cutoff := t.m.now().Add(-maxAge)

	rows, err := t.m.db().QueryContext(ctx, querySimilarEpisodes, blob, ownerID, unixNano(cutoff), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var meta string
		var createdAt int64
		if err := rows.Scan(&ep.ID, &ep.OwnerID, &ep.Text, &meta, &createdAt, &ep.Distance); err != nil {
			return nil, err
		}
		ep.CreatedAt = fromUnixNano(createdAt)
		ep.Metadata = decodeMetadata(meta)
		episodes = append(episodes, ep)
	}

	return episodes, rows.Err()
}

// Recent returns the newest unexpired episodes without consulting the
// embedder.
func (t *EpisodicTier) Recent(ctx context.Context, ownerID string, limit int) ([]Episode, error) {
	cutoff := t.m.now().Add(-t.m.opts.EpisodeLifetime)
	return t.scan(ctx, queryRecentEpisodes, ownerID, unixNano(cutoff), limit)
}

// List returns every stored episode for the owner, oldest first.
func (t *EpisodicTier) List(ctx context.Context, ownerID string) ([]Episode, error) {
	return t.scan(ctx, queryListEpisodes, ownerID)
}

func (t *EpisodicTier) scan(ctx context.Context, query string, args ...any) ([]Episode, error) {
	rows, err := t.m.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var meta string
		var createdAt int64
		if err := rows.Scan(&ep.ID, &ep.OwnerID, &ep.Text, &meta, &createdAt); err != nil {
			return nil, err
		}
		ep.CreatedAt = fromUnixNano(createdAt)
		ep.Metadata = decodeMetadata(meta)
		episodes = append(episodes, ep)
	}

	return episodes, rows.Err()
}

// SweepExpired deletes episodes older than the lifetime in batches of
// batchSize, one transaction per batch, and returns the number removed.
func (t *EpisodicTier) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatch
	}

	cutoff := unixNano(t.m.now().Add(-t.m.opts.EpisodeLifetime))
	total := 0

	for {
		n, err := t.sweepBatch(ctx, cutoff, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < batchSize {
			break
		}
	}

	if total > 0 {
		metrics.SweepDeleted.Add(float64(total))
		logger.Info("expired episodes swept", "deleted", total)
	}

	return total, nil
}

func (t *EpisodicTier) sweepBatch(ctx context.Context, cutoff int64, batchSize int) (int, error) {
	tx, err := t.m.db().BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, queryExpiredEpisodeIDs, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := deleteIn(ctx, tx, "episode_embeddings", "episode_id", ids); err != nil {
		return 0, fmt.Errorf("delete expired embeddings: %w", err)
	}
	if _, err := deleteIn(ctx, tx, "episodes", "id", ids); err != nil {
		return 0, fmt.Errorf("delete expired episodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(ids), nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
