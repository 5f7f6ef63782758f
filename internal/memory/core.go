package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bowerhall/tiermem/internal/metrics"
)

// CoreTier holds durable facts about an owner. Facts are append-only.
type CoreTier struct {
	m *Memory
}

// Store appends a fact. A failed embedding still stores the text; only a
// dimension mismatch prevents the write.
func (c *CoreTier) Store(ctx context.Context, ownerID, text string) (*Entry, error) {
	blob, err := c.m.embedOrDegrade(ctx, "core", ownerID, text)
	if err != nil {
		return nil, err
	}

	createdAt := c.m.now()

	tx, err := c.m.db().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryInsertCoreFact, ownerID, text, unixNano(createdAt))
	if err != nil {
		return nil, fmt.Errorf("insert core fact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if blob != nil {
		if _, err := tx.ExecContext(ctx, queryInsertCoreEmbedding, id, blob); err != nil {
			return nil, fmt.Errorf("insert core embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.EntriesStored.WithLabelValues("core").Inc()

	return &Entry{ID: id, OwnerID: ownerID, Text: text, CreatedAt: createdAt.UTC()}, nil
}

// RetrieveSimilar returns up to k facts nearest to query, closest first.
func (c *CoreTier) RetrieveSimilar(ctx context.Context, ownerID, query string, k int) ([]Entry, error) {
	if k <= 0 {
		return nil, nil
	}

	blob, err := c.m.queryBlob(ctx, query)
	if err != nil || blob == nil {
		return nil, err
	}

	rows, err := c.m.db().QueryContext(ctx, querySimilarCoreFacts, blob, ownerID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Text, &createdAt, &e.Distance); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnixNano(createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ListAll returns every fact for the owner, oldest first.
func (c *CoreTier) ListAll(ctx context.Context, ownerID string) ([]Entry, error) {
	rows, err := c.m.db().QueryContext(ctx, queryListCoreFacts, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Text, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnixNano(createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Gist returns the vector standing in for the owner's core profile: the
// embedding of the newest embedded fact. It is nil when there is none.
func (c *CoreTier) Gist(ctx context.Context, ownerID string) ([]float32, error) {
	blob, err := c.gistBlob(ctx, ownerID)
	if err != nil || blob == nil {
		return nil, err
	}
	return decodeEmbedding(blob), nil
}

func (c *CoreTier) gistBlob(ctx context.Context, ownerID string) ([]byte, error) {
	var blob []byte
	err := c.m.db().QueryRowContext(ctx, queryCoreGist, ownerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return blob, err
}
