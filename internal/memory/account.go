package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/bowerhall/tiermem/internal/logger"
)

// DeletionReport counts the entries removed by DeleteOwner.
type DeletionReport struct {
	CoreFacts int64 `json:"core_facts"`
	Working   int64 `json:"working"`
	Episodes  int64 `json:"episodes"`
}

// DeleteOwner removes everything stored for an owner across all tiers in one
// transaction, embeddings before their entries.
func (m *Memory) DeleteOwner(ctx context.Context, ownerID string) (*DeletionReport, error) {
	tx, err := m.db().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	steps := []struct {
		name  string
		query string
		count *int64
	}{
		{"core embeddings", queryDeleteOwnerCoreEmbeddings, nil},
		{"core facts", queryDeleteOwnerCoreFacts, new(int64)},
		{"working embeddings", queryDeleteOwnerWorkingEmbeddings, nil},
		{"working entries", queryDeleteOwnerWorking, new(int64)},
		{"episode embeddings", queryDeleteOwnerEpisodeEmbeddings, nil},
		{"episodes", queryDeleteOwnerEpisodes, new(int64)},
	}

	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, ownerID)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", step.name, err)
		}
		if step.count != nil {
			if *step.count, err = res.RowsAffected(); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	report := &DeletionReport{
		CoreFacts: *steps[1].count,
		Working:   *steps[3].count,
		Episodes:  *steps[5].count,
	}

	logger.Info("owner memory deleted", "owner", ownerID,
		"core_facts", report.CoreFacts, "working", report.Working, "episodes", report.Episodes)

	return report, nil
}

// Snapshot is a full export of one owner's memory, without vectors.
type Snapshot struct {
	OwnerID    string         `json:"owner_id"`
	ExportedAt time.Time      `json:"exported_at"`
	CoreFacts  []Entry        `json:"core_facts"`
	Working    []WorkingEntry `json:"working_memory"`
	Episodes   []Episode      `json:"episodes"`
}

func (m *Memory) Export(ctx context.Context, ownerID string) (*Snapshot, error) {
	core, err := m.core.ListAll(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("export core facts: %w", err)
	}

	working, err := m.working.History(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("export working memory: %w", err)
	}

	episodes, err := m.episodic.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("export episodes: %w", err)
	}

	snap := &Snapshot{
		OwnerID:    ownerID,
		ExportedAt: m.now().UTC(),
		CoreFacts:  core,
		Working:    working,
		Episodes:   episodes,
	}
	if snap.CoreFacts == nil {
		snap.CoreFacts = []Entry{}
	}
	if snap.Working == nil {
		snap.Working = []WorkingEntry{}
	}
	if snap.Episodes == nil {
		snap.Episodes = []Episode{}
	}

	return snap, nil
}
