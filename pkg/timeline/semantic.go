package timeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/types"
)

const detectorInstructions = `You are a timeline deduplication specialist. You receive a numbered list of
timeline entries produced by independent researchers. Identify groups of
entries that describe the SAME real-world event, even when titles differ or
are written in different languages.

Rules:
- Only group entries you are confident refer to the same event.
- Different events on the same date are NOT duplicates.
- Return each group as the list of entry indices from the input.
- If there are no duplicates, return an empty groups list.`

var detectorSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"groups": {
			Type:        "array",
			Description: "Groups of input indices referring to the same event",
			Items: &generation.Schema{
				Type:  "array",
				Items: &generation.Schema{Type: "integer"},
			},
		},
	},
	Required: []string{"groups"},
}

type duplicateGroups struct {
	Groups [][]int `json:"groups"`
}

// GenerationDetector implements DuplicateDetector over the structured
// generation capability.
type GenerationDetector struct {
	gen generation.Generator
}

// NewGenerationDetector creates a semantic duplicate detector.
func NewGenerationDetector(gen generation.Generator) *GenerationDetector {
	return &GenerationDetector{gen: gen}
}

const descriptionPreview = 160

// FindDuplicateGroups submits one comparison window to the model.
func (d *GenerationDetector) FindDuplicateGroups(ctx context.Context, entries []types.TimelineEntry) ([][]int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Entries: %d\n\n", len(entries))
	for i, e := range entries {
		desc := e.Description
		if len(desc) > descriptionPreview {
			desc = desc[:descriptionPreview]
		}
		fmt.Fprintf(&b, "[%d] %s | %s\n  %s\n", i, e.Date, e.Title, desc)
	}

	result, err := generation.GenerateAs[duplicateGroups](ctx, d.gen, generation.Request{
		System: detectorInstructions,
		Prompt: b.String(),
		Schema: detectorSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("duplicate detection failed: %w", err)
	}
	return result.Groups, nil
}
