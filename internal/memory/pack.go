package memory

import (
	"encoding/json"
	"slices"
	"time"
)

// ContextPack is the read-only view of an owner's memory handed to the
// prompt builder. Accessors return copies.
type ContextPack struct {
	ownerID  string
	core     []Entry
	current  string
	history  []WorkingEntry
	episodes []Episode
}

func (p *ContextPack) OwnerID() string         { return p.ownerID }
func (p *ContextPack) CoreFacts() []Entry      { return slices.Clone(p.core) }
func (p *ContextPack) Current() string         { return p.current }
func (p *ContextPack) History() []WorkingEntry { return slices.Clone(p.history) }
func (p *ContextPack) Episodes() []Episode     { return slices.Clone(p.episodes) }

// Empty reports whether the pack carries no memory at all.
func (p *ContextPack) Empty() bool {
	return len(p.core) == 0 && p.current == "" && len(p.history) == 0 && len(p.episodes) == 0
}

type PackPayload struct {
	CoreFacts        []CoreFactView `json:"core_facts"`
	WorkingMemory    WorkingView    `json:"working_memory"`
	RelevantEpisodes []EpisodeView  `json:"relevant_episodes"`
}

type CoreFactView struct {
	Fact      string `json:"fact"`
	CreatedAt string `json:"created_at"`
}

type WorkingView struct {
	Current string            `json:"current"`
	History []HistoryItemView `json:"history"`
}

type HistoryItemView struct {
	Text      string `json:"text"`
	Order     int    `json:"order"`
	CreatedAt string `json:"created_at"`
}

type EpisodeView struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Payload returns the serialisable form of the pack. Slices are never nil
// so an empty pack still encodes with every field present.
func (p *ContextPack) Payload() PackPayload {
	out := PackPayload{
		CoreFacts:        make([]CoreFactView, 0, len(p.core)),
		WorkingMemory:    WorkingView{Current: p.current, History: make([]HistoryItemView, 0, len(p.history))},
		RelevantEpisodes: make([]EpisodeView, 0, len(p.episodes)),
	}

	for _, f := range p.core {
		out.CoreFacts = append(out.CoreFacts, CoreFactView{Fact: f.Text, CreatedAt: formatTime(f.CreatedAt)})
	}
	for _, h := range p.history {
		out.WorkingMemory.History = append(out.WorkingMemory.History, HistoryItemView{
			Text:      h.Text,
			Order:     h.HistoryOrder,
			CreatedAt: formatTime(h.CreatedAt),
		})
	}
	for _, ep := range p.episodes {
		out.RelevantEpisodes = append(out.RelevantEpisodes, EpisodeView{Text: ep.Text, CreatedAt: formatTime(ep.CreatedAt)})
	}

	return out
}

func (p *ContextPack) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Payload())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
