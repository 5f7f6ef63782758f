package config

import "time"

type Config struct {
	MemoryPath string          `yaml:"memory_path"`
	Timezone   string          `yaml:"timezone"`
	Memory     MemoryConfig    `yaml:"memory"`
	Embedder   EmbedderConfig  `yaml:"embedder"`
	Extractor  ExtractorConfig `yaml:"extractor"`
	Jobs       JobsConfig      `yaml:"jobs"`
	Storage    StorageConfig   `yaml:"storage"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// MemoryConfig tunes the three tiers and the deduplicator.
type MemoryConfig struct {
	Dimensions      int           `yaml:"dimensions"`
	EpisodeLifetime time.Duration `yaml:"episode_lifetime"`
	DedupThreshold  float64       `yaml:"dedup_threshold"`
	DedupWindow     time.Duration `yaml:"dedup_window"`
	DedupBatchSize  int           `yaml:"dedup_batch_size"`
	SweepBatchSize  int           `yaml:"sweep_batch_size"`
	RecallK         int           `yaml:"recall_k"`
}

type EmbedderConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int64         `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type ExtractorConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
}

type JobsConfig struct {
	SweepSchedule    string  `yaml:"sweep_schedule"`
	DedupSchedule    string  `yaml:"dedup_schedule"`
	BackfillSchedule string  `yaml:"backfill_schedule"`
	BackupSchedule   string  `yaml:"backup_schedule"`
	BackfillBatch    int     `yaml:"backfill_batch"`
	MaxLoad          float64 `yaml:"max_load"`
}

type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"-"`
	SecretKey    string `yaml:"-"`
	UseSSL       bool   `yaml:"use_ssl"`
	ExportBucket string `yaml:"export_bucket"`
	BackupBucket string `yaml:"backup_bucket"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}
