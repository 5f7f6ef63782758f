package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

// WorkingTier keeps the WorkingWindow newest short-term summaries per owner.
// history_order 1 is the newest and is what Current returns.
type WorkingTier struct {
	m *Memory
}

type workingRow struct {
	id        int64
	bootstrap bool
}

// Store inserts text at order 1, shifting older rows down and evicting the
// ones that fall off the window. The rotation is a single transaction. The
// placeholder row Current creates is evicted rather than shifted; stored
// entries shift whatever their text.
func (w *WorkingTier) Store(ctx context.Context, ownerID, text string) error {
	// embed before taking the write lock
	blob, err := w.m.embedOrDegrade(ctx, "working", ownerID, text)
	if err != nil {
		return err
	}

	tx, err := w.m.db().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, queryWorkingRows, ownerID)
	if err != nil {
		return err
	}
	var existing []workingRow
	for rows.Next() {
		var r workingRow
		if err := rows.Scan(&r.id, &r.bootstrap); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var keep, evict []int64
	for _, r := range existing {
		if !r.bootstrap && len(keep) < WorkingWindow-1 {
			keep = append(keep, r.id)
			continue
		}
		evict = append(evict, r.id)
	}

	if _, err := deleteIn(ctx, tx, "working_embeddings", "entry_id", evict); err != nil {
		return fmt.Errorf("evict working embeddings: %w", err)
	}
	if _, err := deleteIn(ctx, tx, "working_entries", "id", evict); err != nil {
		return fmt.Errorf("evict working entries: %w", err)
	}

	// park shifted rows on negative orders so the unique index never sees
	// two rows on the same slot, then flip them back
	for i, id := range keep {
		if _, err := tx.ExecContext(ctx, querySetWorkingOrder, -(i + 2), id); err != nil {
			return fmt.Errorf("shift working entry %d: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, queryFlipWorkingOrders, ownerID); err != nil {
		return fmt.Errorf("shift working entries: %w", err)
	}

	res, err := tx.ExecContext(ctx, queryInsertWorkingEntry, ownerID, text, unixNano(w.m.now()))
	if err != nil {
		return fmt.Errorf("insert working entry: %w", err)
	}

	if blob != nil {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, queryInsertWorkingEmbedding, id, blob); err != nil {
			return fmt.Errorf("insert working embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.EntriesStored.WithLabelValues("working").Inc()
	if len(evict) > 0 {
		metrics.WorkingEvicted.Add(float64(len(evict)))
		logger.Debug("working memory rotated", "owner", ownerID, "evicted", len(evict))
	}

	return nil
}

// Current returns the order 1 entry, creating an empty one for owners that
// have no working memory yet.
func (w *WorkingTier) Current(ctx context.Context, ownerID string) (*WorkingEntry, error) {
	e, err := w.current(ctx, ownerID)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if _, err := w.m.db().ExecContext(ctx, queryBootstrapWorkingEntry, ownerID, unixNano(w.m.now())); err != nil {
		return nil, fmt.Errorf("bootstrap working entry: %w", err)
	}

	return w.current(ctx, ownerID)
}

func (w *WorkingTier) current(ctx context.Context, ownerID string) (*WorkingEntry, error) {
	var e WorkingEntry
	var createdAt int64
	err := w.m.db().QueryRowContext(ctx, queryWorkingCurrent, ownerID).
		Scan(&e.ID, &e.OwnerID, &e.Text, &e.HistoryOrder, &createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = fromUnixNano(createdAt)
	return &e, nil
}

// History returns all working entries, newest first.
func (w *WorkingTier) History(ctx context.Context, ownerID string) ([]WorkingEntry, error) {
	rows, err := w.m.db().QueryContext(ctx, queryWorkingHistory, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []WorkingEntry
	for rows.Next() {
		var e WorkingEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Text, &e.HistoryOrder, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnixNano(createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (w *WorkingTier) RetrieveSimilar(ctx context.Context, ownerID, query string, k int) ([]WorkingEntry, error) {
	if k <= 0 {
		return nil, nil
	}

	blob, err := w.m.queryBlob(ctx, query)
	if err != nil || blob == nil {
		return nil, err
	}

	rows, err := w.m.db().QueryContext(ctx, querySimilarWorking, blob, ownerID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []WorkingEntry
	for rows.Next() {
		var e WorkingEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Text, &e.HistoryOrder, &createdAt, &e.Distance); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnixNano(createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (w *WorkingTier) currentBlob(ctx context.Context, ownerID string) ([]byte, error) {
	var blob []byte
	err := w.m.db().QueryRowContext(ctx, queryWorkingCurrentEmbedding, ownerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return blob, err
}
