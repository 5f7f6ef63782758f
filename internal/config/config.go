package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDimensions      = 768
	defaultLifetimeDays    = 75
	defaultDedupThreshold  = 0.95
	defaultDedupWindow     = 24 * time.Hour
	defaultSweepBatchSize  = 1000
	defaultDedupBatchSize  = 200
	defaultRecallK         = 5
	defaultEmbedderTimeout = 10 * time.Second
)

// Load reads configuration from the environment, then overlays the YAML
// file named by TIERMEM_CONFIG when set.
func Load() (*Config, error) {
	memoryPath := os.Getenv("TIERMEM_MEMORY")
	if memoryPath == "" {
		memoryPath = "tiermem.db"
	}

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}

	memoryConfig, err := loadMemoryConfig()
	if err != nil {
		return nil, err
	}

	embedderConfig, err := loadEmbedderConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MemoryPath: memoryPath,
		Timezone:   timezone,
		Memory:     memoryConfig,
		Embedder:   embedderConfig,
		Extractor:  loadExtractorConfig(),
		Jobs:       loadJobsConfig(),
		Storage:    loadStorageConfig(),
		Metrics:    loadMetricsConfig(),
	}

	if path := os.Getenv("TIERMEM_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// Validate rejects values the memory tiers cannot run with.
func (c *Config) Validate() error {
	m := c.Memory
	if m.Dimensions <= 0 {
		return fmt.Errorf("VECTOR_DIM must be positive, got %d", m.Dimensions)
	}
	if m.EpisodeLifetime <= 0 {
		return fmt.Errorf("episode lifetime must be positive, got %s", m.EpisodeLifetime)
	}
	if m.DedupThreshold <= 0 || m.DedupThreshold > 1 {
		return fmt.Errorf("dedup threshold must be in (0, 1], got %v", m.DedupThreshold)
	}
	if m.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive, got %s", m.DedupWindow)
	}
	if m.SweepBatchSize <= 0 || m.DedupBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if m.RecallK <= 0 {
		return fmt.Errorf("RECALL_K must be positive, got %d", m.RecallK)
	}
	if c.Embedder.Timeout <= 0 {
		return fmt.Errorf("embedder timeout must be positive, got %s", c.Embedder.Timeout)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func loadMemoryConfig() (MemoryConfig, error) {
	dims, err := envInt("VECTOR_DIM", defaultDimensions)
	if err != nil {
		return MemoryConfig{}, err
	}

	days, err := envInt("EPISODE_LIFETIME_DAYS", defaultLifetimeDays)
	if err != nil {
		return MemoryConfig{}, err
	}

	threshold := defaultDedupThreshold
	if v := os.Getenv("DEDUP_SIMILARITY_THRESHOLD"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return MemoryConfig{}, fmt.Errorf("invalid DEDUP_SIMILARITY_THRESHOLD: %w", err)
		}
	}

	window, err := envDuration("DEDUP_RECENT_WINDOW", defaultDedupWindow)
	if err != nil {
		return MemoryConfig{}, err
	}

	sweepBatch, err := envInt("SWEEP_BATCH_SIZE", defaultSweepBatchSize)
	if err != nil {
		return MemoryConfig{}, err
	}

	dedupBatch, err := envInt("DEDUP_BATCH_SIZE", defaultDedupBatchSize)
	if err != nil {
		return MemoryConfig{}, err
	}

	recallK, err := envInt("RECALL_K", defaultRecallK)
	if err != nil {
		return MemoryConfig{}, err
	}

	return MemoryConfig{
		Dimensions:      dims,
		EpisodeLifetime: time.Duration(days) * 24 * time.Hour,
		DedupThreshold:  threshold,
		DedupWindow:     window,
		DedupBatchSize:  dedupBatch,
		SweepBatchSize:  sweepBatch,
		RecallK:         recallK,
	}, nil
}

func loadEmbedderConfig() (EmbedderConfig, error) {
	timeout, err := envDuration("EMBEDDER_TIMEOUT", defaultEmbedderTimeout)
	if err != nil {
		return EmbedderConfig{}, err
	}

	ttl, err := envDuration("EMBEDDER_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return EmbedderConfig{}, err
	}

	var cacheSize int64 = 1 << 20
	if v := os.Getenv("EMBEDDER_CACHE_SIZE"); v != "" {
		cacheSize, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return EmbedderConfig{}, fmt.Errorf("invalid EMBEDDER_CACHE_SIZE: %w", err)
		}
	}

	return EmbedderConfig{
		Provider:  os.Getenv("EMBEDDER_PROVIDER"),
		BaseURL:   os.Getenv("EMBEDDER_URL"),
		Model:     os.Getenv("EMBEDDER_MODEL"),
		Timeout:   timeout,
		CacheSize: cacheSize,
		CacheTTL:  ttl,
	}, nil
}

func loadExtractorConfig() ExtractorConfig {
	apiKey := os.Getenv("EXTRACTOR_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	model := os.Getenv("EXTRACTOR_MODEL")
	if model == "" {
		model = "claude-haiku-4-5"
	}

	return ExtractorConfig{
		Enabled: apiKey != "",
		APIKey:  apiKey,
		Model:   model,
	}
}

func loadJobsConfig() JobsConfig {
	sweep := os.Getenv("SWEEP_SCHEDULE")
	if sweep == "" {
		sweep = "0 4 * * *"
	}

	dedup := os.Getenv("DEDUP_SCHEDULE")
	if dedup == "" {
		dedup = "30 4 * * *"
	}

	backfill := os.Getenv("BACKFILL_SCHEDULE")
	if backfill == "" {
		backfill = "*/30 * * * *"
	}

	// empty disables scheduled backups
	backup := os.Getenv("BACKUP_SCHEDULE")

	batch := 64
	if n, err := strconv.Atoi(os.Getenv("BACKFILL_BATCH_SIZE")); err == nil && n > 0 {
		batch = n
	}

	var maxLoad float64
	if v, err := strconv.ParseFloat(os.Getenv("JOBS_MAX_LOAD"), 64); err == nil && v > 0 {
		maxLoad = v
	}

	return JobsConfig{
		SweepSchedule:    sweep,
		DedupSchedule:    dedup,
		BackfillSchedule: backfill,
		BackupSchedule:   backup,
		BackfillBatch:    batch,
		MaxLoad:          maxLoad,
	}
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	exportBucket := os.Getenv("MINIO_EXPORT_BUCKET")
	if exportBucket == "" {
		exportBucket = "tiermem-exports"
	}

	backupBucket := os.Getenv("MINIO_BACKUP_BUCKET")
	if backupBucket == "" {
		backupBucket = "tiermem-backups"
	}

	return StorageConfig{
		Enabled:      accessKey != "" && secretKey != "",
		Endpoint:     endpoint,
		AccessKey:    accessKey,
		SecretKey:    secretKey,
		UseSSL:       os.Getenv("MINIO_USE_SSL") == "true",
		ExportBucket: exportBucket,
		BackupBucket: backupBucket,
	}
}

func loadMetricsConfig() MetricsConfig {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	return MetricsConfig{Addr: addr}
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
