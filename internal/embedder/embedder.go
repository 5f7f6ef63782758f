package embedder

import (
	"fmt"
	"time"

	"github.com/bowerhall/tiermem/internal/memory"
)

type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	Dimensions int
	CacheSize  int64
	CacheTTL   time.Duration
}

// New builds the configured provider, wrapped in a cache when CacheSize is
// positive. An empty provider means no embedder; tiers then store text only.
func New(cfg Config) (memory.Embedder, error) {
	var e memory.Embedder

	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		e = newOllama(baseURL, model)
	case "hash":
		e = NewHash(cfg.Dimensions)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}

	if cfg.CacheSize <= 0 {
		return e, nil
	}

	return NewCached(e, cfg.CacheSize, cfg.CacheTTL)
}
