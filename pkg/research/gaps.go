package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

const gapInstructions = `You are a timeline completeness analyst. You receive a finished timeline
skeleton and must do two things:

1. Find genuinely missing milestones: events the timeline needs for the
   story to make sense (large chronological holes, missing causes of
   included effects). Propose at most the requested number of additions;
   propose none when the timeline is already complete.
2. Map causal connections BETWEEN EXISTING entries, using their ids
   exactly as given. Aim for 10 to 15 meaningful connections; quality over
   quantity. Never invent ids.

Write all text fields in the requested language.`

// Caps on what one gap analysis pass may add.
const (
	maxGapEntries     = 5
	maxGapConnections = 15
)

// GapAnalyzer asks the model for missing milestones and causal connections
// over the assembled timeline. Gap entries get fresh ids from the shared
// allocator and are flagged so the rendering layer can distinguish them.
type GapAnalyzer struct {
	gen generation.Generator
	ids *timeline.IDAllocator
	log *zap.Logger
}

// NewGapAnalyzer creates a gap analyzer.
func NewGapAnalyzer(gen generation.Generator, ids *timeline.IDAllocator, log *zap.Logger) *GapAnalyzer {
	return &GapAnalyzer{gen: gen, ids: ids, log: log}
}

// Analyze returns the gap entries to add and the validated connection set.
// It fails open: on error the timeline stands as-is with no connections.
func (g *GapAnalyzer) Analyze(ctx context.Context, topic, language string, entries []types.TimelineEntry) ([]types.TimelineEntry, []types.Connection) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Language: %s\n", language)
	fmt.Fprintf(&b, "Maximum additions: %d\n\n", maxGapEntries)
	fmt.Fprintf(&b, "## Timeline\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s | %s | %s | %s\n", e.ID, e.Date, e.Title, e.Significance)
	}

	analysis, err := generation.GenerateAs[gapAnalysis](ctx, g.gen, generation.Request{
		System: gapInstructions,
		Prompt: b.String(),
		Schema: gapSchema,
	})
	if err != nil {
		g.log.Warn("gap analysis failed, keeping timeline as-is", zap.Error(err))
		return nil, nil
	}

	gapNodes := analysis.GapNodes
	if len(gapNodes) > maxGapEntries {
		gapNodes = gapNodes[:maxGapEntries]
	}
	added := make([]types.TimelineEntry, 0, len(gapNodes))
	for _, node := range gapNodes {
		significance := node.Significance
		if significance == "" {
			significance = types.SignificanceMedium
		}
		added = append(added, types.TimelineEntry{
			ID:           g.ids.Next(),
			Date:         node.Date,
			Title:        node.Title,
			Subtitle:     node.Subtitle,
			Significance: significance,
			Description:  node.Description,
			Sources:      node.Sources,
			IsGapEntry:   true,
		})
	}

	conns := analysis.Connections
	if len(conns) > maxGapConnections {
		conns = conns[:maxGapConnections]
	}
	// Connections may only reference entries the model actually saw.
	conns = timeline.ValidateConnections(conns, entries)
	return added, conns
}
