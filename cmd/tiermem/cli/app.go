package cli

import (
	"fmt"

	"github.com/bowerhall/tiermem/internal/config"
	"github.com/bowerhall/tiermem/internal/embedder"
	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/memory"
	"github.com/bowerhall/tiermem/internal/storage"
)

type app struct {
	cfg      *config.Config
	store    *memory.Store
	embedder memory.Embedder
	mem      *memory.Memory
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := memory.Open(cfg.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open memory %s: %w", cfg.MemoryPath, err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:   cfg.Embedder.Provider,
		BaseURL:    cfg.Embedder.BaseURL,
		Model:      cfg.Embedder.Model,
		Dimensions: cfg.Memory.Dimensions,
		CacheSize:  cfg.Embedder.CacheSize,
		CacheTTL:   cfg.Embedder.CacheTTL,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if emb == nil {
		logger.Warn("no embedder configured, similarity search disabled")
	}

	mem := memory.New(store, emb, memory.Options{
		Dimensions:      cfg.Memory.Dimensions,
		EmbedTimeout:    cfg.Embedder.Timeout,
		EpisodeLifetime: cfg.Memory.EpisodeLifetime,
		DedupThreshold:  cfg.Memory.DedupThreshold,
		DedupWindow:     cfg.Memory.DedupWindow,
		DedupBatchSize:  cfg.Memory.DedupBatchSize,
		RecallK:         cfg.Memory.RecallK,
	})

	logger.Debug("memory opened", "path", cfg.MemoryPath, "embedder", cfg.Embedder.Provider, "dimensions", cfg.Memory.Dimensions)

	return &app{cfg: cfg, store: store, embedder: emb, mem: mem}, nil
}

// Close waits for background dedup passes before closing the database.
func (a *app) Close() {
	a.mem.Deduplicator().Wait()
	if c, ok := a.embedder.(*embedder.Cached); ok {
		c.Close()
	}
	a.store.Close()
}

func (a *app) storage() (*storage.Client, error) {
	sc := a.cfg.Storage
	if !sc.Enabled {
		return nil, fmt.Errorf("object storage not configured (set MINIO_ACCESS_KEY and MINIO_SECRET_KEY)")
	}

	return storage.NewClient(storage.Config{
		Endpoint:     sc.Endpoint,
		AccessKey:    sc.AccessKey,
		SecretKey:    sc.SecretKey,
		UseSSL:       sc.UseSSL,
		ExportBucket: sc.ExportBucket,
		BackupBucket: sc.BackupBucket,
	})
}
