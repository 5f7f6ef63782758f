// Package extract classifies the facts in a conversation exchange into
// memory tiers using an LLM.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/memory"
)

const systemPrompt = `You extract facts worth remembering about the user from a single exchange with a personal assistant.`

const extractPrompt = `Analyze the exchange below and extract facts worth remembering.

Classify each fact by importance:
- "Core": durable facts about the user (name, job, family, allergies, long-term preferences, values)
- "Working": what the user is focused on right now (current task, plan for today, open question)
- "Episode": something that happened or was said that may matter for a few weeks

Return a JSON array. Each item has:
- "fact": one short self-contained sentence
- "importance": "Core", "Working" or "Episode"

Only extract facts that are explicitly stated or strongly implied. Do not invent facts.
If nothing is worth remembering, return an empty array: []

Example output:
[
  {"fact": "The user is allergic to peanuts", "importance": "Core"},
  {"fact": "The user is preparing slides for Friday's review", "importance": "Working"}
]

Exchange:
%s

Extract facts (JSON only, no explanation):`

// Completer sends one prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Extractor struct {
	llm Completer
}

func New(llm Completer) *Extractor {
	return &Extractor{llm: llm}
}

// Extract returns the classified facts found in one user/assistant exchange.
func (e *Extractor) Extract(ctx context.Context, userMessage, assistantResponse string) ([]memory.Fact, error) {
	exchange := fmt.Sprintf("user: %s\nassistant: %s\n", userMessage, assistantResponse)

	response, err := e.llm.Complete(ctx, systemPrompt, fmt.Sprintf(extractPrompt, exchange))
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}

	facts, err := ParseFacts(response)
	if err != nil {
		logger.Error("fact parsing failed", "error", err, "response", response)
		return nil, err
	}

	logger.Debug("facts extracted", "count", len(facts))
	return facts, nil
}

type extractedFact struct {
	Fact       string `json:"fact"`
	Importance string `json:"importance"`
}

// ParseFacts reads the first JSON array in response, tolerating prose or
// code fences around it. Blank facts are dropped and unknown importance
// labels become Episode.
func ParseFacts(response string) ([]memory.Fact, error) {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")

	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found")
	}

	var raw []extractedFact
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, err
	}

	facts := make([]memory.Fact, 0, len(raw))
	for _, f := range raw {
		text := strings.TrimSpace(f.Fact)
		if text == "" {
			continue
		}
		facts = append(facts, memory.Fact{Text: text, Importance: memory.ParseImportance(f.Importance)})
	}

	return facts, nil
}
