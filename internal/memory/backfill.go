package memory

import (
	"context"
	"fmt"

	"github.com/bowerhall/tiermem/internal/logger"
)

type embeddedTable struct {
	tier       string
	entries    string
	textColumn string
	embeddings string
	fkColumn   string
}

var embeddedTables = []embeddedTable{
	{"core", "core_facts", "fact", "core_fact_embeddings", "fact_id"},
	{"working", "working_entries", "text", "working_embeddings", "entry_id"},
	{"episodic", "episodes", "text", "episode_embeddings", "episode_id"},
}

func (t embeddedTable) missingQuery() string {
	return fmt.Sprintf(`
		SELECT x.id, x.%[2]s
		FROM %[1]s x
		LEFT JOIN %[3]s e ON e.%[4]s = x.id
		WHERE e.%[4]s IS NULL AND x.%[2]s != '' AND x.id > ?
		ORDER BY x.id ASC
		LIMIT ?`, t.entries, t.textColumn, t.embeddings, t.fkColumn)
}

func (t embeddedTable) insertQuery() string {
	return fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s, embedding) SELECT ?, ? WHERE EXISTS (SELECT 1 FROM %s WHERE id = ?)`,
		t.embeddings, t.fkColumn, t.entries)
}

// Backfill embeds entries that were stored without a vector, such as those
// written while the provider was down. It walks each tier in batches and
// returns how many embeddings were added.
func (m *Memory) Backfill(ctx context.Context, batchSize int) (int, error) {
	if m.vec.embedder == nil {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 64
	}

	total := 0
	for _, table := range embeddedTables {
		n, err := m.backfillTable(ctx, table, batchSize)
		total += n
		if err != nil {
			return total, fmt.Errorf("backfill %s: %w", table.tier, err)
		}
		if n > 0 {
			logger.Info("embeddings backfilled", "tier", table.tier, "count", n)
		}
	}

	return total, nil
}

func (m *Memory) backfillTable(ctx context.Context, table embeddedTable, batchSize int) (int, error) {
	var after int64
	added := 0

	for {
		ids, texts, err := m.missing(ctx, table, after, batchSize)
		if err != nil {
			return added, err
		}
		if len(ids) == 0 {
			return added, nil
		}
		after = ids[len(ids)-1]

		vecs, err := m.vec.embedBatch(ctx, texts)
		if err != nil {
			return added, err
		}

		for i, vec := range vecs {
			if vec == nil {
				continue
			}
			blob, err := serializeEmbedding(vec)
			if err != nil {
				return added, err
			}
			// the entry may have been evicted or swept since it was read
			res, err := m.db().ExecContext(ctx, table.insertQuery(), ids[i], blob, ids[i])
			if err != nil {
				logger.Error("failed to store backfilled embedding", "tier", table.tier, "id", ids[i], "error", err)
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}

		if len(ids) < batchSize {
			return added, nil
		}
	}
}

func (m *Memory) missing(ctx context.Context, table embeddedTable, after int64, limit int) ([]int64, []string, error) {
	rows, err := m.db().QueryContext(ctx, table.missingQuery(), after, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []int64
	var texts []string
	for rows.Next() {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		texts = append(texts, text)
	}
	return ids, texts, rows.Err()
}
