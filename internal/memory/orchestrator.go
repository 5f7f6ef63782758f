package memory

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

// Orchestrator assembles context packs from the three tiers.
type Orchestrator struct {
	m *Memory
}

// Assemble reads all tiers concurrently and builds a ContextPack. Tier
// failures degrade to missing data; only a configuration error is returned.
// A non-positive k uses the configured recall size.
func (o *Orchestrator) Assemble(ctx context.Context, ownerID, query string, k int) (*ContextPack, error) {
	ctx, span := tracer.Start(ctx, "memory.assemble", trace.WithAttributes(attribute.String("owner", ownerID)))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.AssembleDuration.Observe(time.Since(start).Seconds())
	}()

	if k <= 0 {
		k = o.m.opts.RecallK
	}

	pack := &ContextPack{ownerID: ownerID}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		facts, err := o.m.core.ListAll(gctx, ownerID)
		if err != nil {
			logger.Warn("core facts unavailable", "owner", ownerID, "error", err)
			return nil
		}
		pack.core = facts
		return nil
	})

	g.Go(func() error {
		current, err := o.m.working.Current(gctx, ownerID)
		if err != nil {
			logger.Warn("working memory unavailable", "owner", ownerID, "error", err)
			return nil
		}
		pack.current = current.Text

		history, err := o.m.working.History(gctx, ownerID)
		if err != nil {
			logger.Warn("working history unavailable", "owner", ownerID, "error", err)
			return nil
		}
		for _, h := range history {
			if h.Text != "" {
				pack.history = append(pack.history, h)
			}
		}
		return nil
	})

	g.Go(func() error {
		episodes, err := o.episodes(gctx, ownerID, query, k)
		if err != nil {
			return err
		}
		pack.episodes = episodes
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("core_facts", len(pack.core)),
		attribute.Int("history", len(pack.history)),
		attribute.Int("episodes", len(pack.episodes)),
	)

	return pack, nil
}

// episodes falls back to the newest episodes when the query cannot be
// embedded.
func (o *Orchestrator) episodes(ctx context.Context, ownerID, query string, k int) ([]Episode, error) {
	if strings.TrimSpace(query) != "" {
		episodes, err := o.m.episodic.RetrieveSimilar(ctx, ownerID, query, k, 0)
		if err == nil && episodes != nil {
			return episodes, nil
		}
		if IsConfigurationError(err) {
			return nil, err
		}
		if err != nil {
			logger.Warn("episode search failed, using recent episodes", "owner", ownerID, "error", err)
		}
	}

	recent, err := o.m.episodic.Recent(ctx, ownerID, k)
	if err != nil {
		logger.Warn("recent episodes unavailable", "owner", ownerID, "error", err)
		return nil, nil
	}
	return recent, nil
}
