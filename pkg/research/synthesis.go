package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/types"
)

const synthesisInstructions = `You are a research editor. You receive a finished timeline and must write
its closing synthesis.

Fields:
- summary: 3-5 sentences covering the full arc of the timeline.
- key_insight: the single most important takeaway, one or two sentences.
- timeline_span: the covered period, e.g. "1969 - 2025".
- verification_notes: short notes on what was verified or adjusted during
  research; empty when there is nothing notable.

Leave source_count at 0. Write all text fields in the requested language.`

// Synthesizer produces the run's closing summary from the final entry set.
type Synthesizer struct {
	gen generation.Generator
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(gen generation.Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// Synthesize generates the summary and fills in the computed source count.
func (s *Synthesizer) Synthesize(ctx context.Context, topic, language string, entries []types.TimelineEntry) (*types.SynthesisResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Language: %s\n", language)
	fmt.Fprintf(&b, "Entries: %d\n\n", len(entries))
	fmt.Fprintf(&b, "## Timeline\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s | %s (%s)\n", e.Date, e.Title, e.Significance)
		if e.Description != "" {
			fmt.Fprintf(&b, "  %s\n", e.Description)
		}
	}

	result, err := generation.GenerateAs[types.SynthesisResult](ctx, s.gen, generation.Request{
		System: synthesisInstructions,
		Prompt: b.String(),
		Schema: synthesisSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis generation failed: %w", err)
	}
	result.SourceCount = CountSources(entries)
	return &result, nil
}

// CountSources counts distinct source URLs across entries and their details.
func CountSources(entries []types.TimelineEntry) int {
	seen := make(map[string]bool)
	for _, e := range entries {
		for _, s := range e.Sources {
			if s != "" {
				seen[s] = true
			}
		}
		if e.Details != nil {
			for _, s := range e.Details.Sources {
				if s != "" {
					seen[s] = true
				}
			}
		}
	}
	return len(seen)
}
