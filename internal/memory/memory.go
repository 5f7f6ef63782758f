// Package memory implements the assistant's three memory tiers on top of
// sqlite and sqlite-vec, plus the deduplicator and the context assembler
// that read across them.
package memory

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bowerhall/tiermem/internal/logger"
)

var tracer = otel.Tracer("tiermem/memory")

// Memory wires the tiers to a shared store, embedder and clock.
type Memory struct {
	store *Store
	vec   *vectorizer
	opts  Options

	core     *CoreTier
	working  *WorkingTier
	episodic *EpisodicTier
	dedup    *Deduplicator
	orch     *Orchestrator
}

func New(store *Store, embedder Embedder, opts Options) *Memory {
	opts = opts.withDefaults()

	m := &Memory{
		store: store,
		vec:   newVectorizer(embedder, opts.Dimensions, opts.EmbedTimeout),
		opts:  opts,
	}
	m.core = &CoreTier{m: m}
	m.working = &WorkingTier{m: m}
	m.episodic = &EpisodicTier{m: m}
	m.dedup = &Deduplicator{m: m}
	m.orch = &Orchestrator{m: m}

	return m
}

func (m *Memory) Core() *CoreTier             { return m.core }
func (m *Memory) Working() *WorkingTier       { return m.working }
func (m *Memory) Episodic() *EpisodicTier     { return m.episodic }
func (m *Memory) Deduplicator() *Deduplicator { return m.dedup }
func (m *Memory) Orchestrator() *Orchestrator { return m.orch }
func (m *Memory) Store() *Store               { return m.store }

func (m *Memory) now() time.Time {
	return m.opts.Now()
}

func (m *Memory) db() *sql.DB {
	return m.store.db
}

// Remember routes classified facts into their tiers and schedules a
// deduplication pass for the owner. It returns how many facts were stored.
func (m *Memory) Remember(ctx context.Context, ownerID string, facts []Fact) (int, error) {
	stored := 0

	for _, f := range facts {
		var err error
		switch f.Importance {
		case ImportanceCore:
			_, err = m.core.Store(ctx, ownerID, f.Text)
		case ImportanceWorking:
			err = m.working.Store(ctx, ownerID, f.Text)
		default:
			_, err = m.episodic.Store(ctx, ownerID, f.Text, map[string]string{"source": "extractor"})
		}

		if err != nil {
			if IsConfigurationError(err) {
				return stored, err
			}
			logger.Error("failed to store fact", "owner", ownerID, "importance", f.Importance, "error", err)
			continue
		}

		logger.Debug("fact stored", "owner", ownerID, "importance", f.Importance)
		stored++
	}

	if stored > 0 {
		m.dedup.RunAsync(ownerID)
	}

	return stored, nil
}

// embedOrDegrade embeds text for a write. Provider failures are logged and
// yield a nil blob so the text is still stored.
func (m *Memory) embedOrDegrade(ctx context.Context, tier, ownerID, text string) ([]byte, error) {
	vec, err := m.vec.embed(ctx, text)
	if err != nil {
		if IsConfigurationError(err) {
			return nil, err
		}
		logger.Warn("embedding failed, storing without vector", "tier", tier, "owner", ownerID, "error", err)
		return nil, nil
	}
	if vec == nil {
		return nil, nil
	}

	return serializeEmbedding(vec)
}

// queryBlob embeds a similarity query. A nil blob with no error means there
// is nothing to search for.
func (m *Memory) queryBlob(ctx context.Context, query string) ([]byte, error) {
	vec, err := m.vec.embed(ctx, query)
	if err != nil || vec == nil {
		return nil, err
	}
	return serializeEmbedding(vec)
}

func unixNano(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
