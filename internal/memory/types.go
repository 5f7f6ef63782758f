package memory

import (
	"context"
	"strings"
	"time"
)

// WorkingWindow is the number of working entries kept per owner.
const WorkingWindow = 7

// Embedder turns text into a vector of the configured dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Entry is a stored piece of owner text. Distance is only set on results of
// a similarity query.
type Entry struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	Distance  float64   `json:"-"`
}

type WorkingEntry struct {
	Entry
	HistoryOrder int `json:"history_order"`
}

type Episode struct {
	Entry
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Importance string

const (
	ImportanceCore    Importance = "Core"
	ImportanceWorking Importance = "Working"
	ImportanceEpisode Importance = "Episode"
)

// ParseImportance maps a label to an Importance, defaulting to Episode for
// anything it does not recognise.
func ParseImportance(s string) Importance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core":
		return ImportanceCore
	case "working":
		return ImportanceWorking
	default:
		return ImportanceEpisode
	}
}

// Fact is a classified statement waiting to be routed into a tier.
type Fact struct {
	Text       string     `json:"fact"`
	Importance Importance `json:"importance"`
}

type Options struct {
	Dimensions      int
	EmbedTimeout    time.Duration
	EpisodeLifetime time.Duration
	DedupThreshold  float64
	DedupWindow     time.Duration
	DedupBatchSize  int
	RecallK         int
	Now             func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Dimensions:      768,
		EmbedTimeout:    10 * time.Second,
		EpisodeLifetime: 75 * 24 * time.Hour,
		DedupThreshold:  0.95,
		DedupWindow:     24 * time.Hour,
		DedupBatchSize:  200,
		RecallK:         5,
		Now:             time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Dimensions <= 0 {
		o.Dimensions = def.Dimensions
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = def.EmbedTimeout
	}
	if o.EpisodeLifetime <= 0 {
		o.EpisodeLifetime = def.EpisodeLifetime
	}
	if o.DedupThreshold <= 0 || o.DedupThreshold > 1 {
		o.DedupThreshold = def.DedupThreshold
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = def.DedupWindow
	}
	if o.DedupBatchSize <= 0 {
		o.DedupBatchSize = def.DedupBatchSize
	}
	if o.RecallK <= 0 {
		o.RecallK = def.RecallK
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}
