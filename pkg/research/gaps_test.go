package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

func TestAnalyzeCapsAdditionsAndValidatesConnections(t *testing.T) {
	gapNodes := make([]map[string]any, 0, 7)
	for i := 0; i < 7; i++ {
		gapNodes = append(gapNodes, map[string]any{
			"date":         fmt.Sprintf("19%d0-01-01", i+2),
			"title":        fmt.Sprintf("Missing event %d", i),
			"significance": "medium",
			"description":  "filler for a chronological hole",
		})
	}
	payload, err := json.Marshal(map[string]any{
		"gap_nodes": gapNodes,
		"connections": []map[string]any{
			{"from_id": "ms_001", "to_id": "ms_002", "relationship": "led to", "type": "caused"},
			{"from_id": "ms_001", "to_id": "ms_999", "relationship": "dangling", "type": "enabled"},
		},
	})
	require.NoError(t, err)

	gen := &stubGenerator{fn: func(generation.Request) (json.RawMessage, error) {
		return payload, nil
	}}
	ids := timeline.NewIDAllocator("ms")
	ids.Next()
	ids.Next()
	analyzer := NewGapAnalyzer(gen, ids, zap.NewNop())

	existing := []types.TimelineEntry{
		{ID: "ms_001", Date: "1976-04-01", Title: "Founding"},
		{ID: "ms_002", Date: "1984-01-24", Title: "Macintosh"},
	}

	added, conns := analyzer.Analyze(context.Background(), "Apple", "en", existing)

	require.Len(t, added, maxGapEntries)
	for i, e := range added {
		assert.True(t, e.IsGapEntry)
		assert.Equal(t, fmt.Sprintf("ms_%03d", i+3), e.ID, "gap ids continue the run sequence")
	}

	require.Len(t, conns, 1)
	assert.Equal(t, "ms_002", conns[0].ToID)
}

func TestAnalyzeFailsOpen(t *testing.T) {
	gen := &stubGenerator{fn: func(generation.Request) (json.RawMessage, error) {
		return nil, errors.New("model unavailable")
	}}
	analyzer := NewGapAnalyzer(gen, timeline.NewIDAllocator("ms"), zap.NewNop())

	added, conns := analyzer.Analyze(context.Background(), "topic", "en", []types.TimelineEntry{
		{ID: "ms_001", Date: "2000-01-01", Title: "Event"},
	})

	assert.Nil(t, added)
	assert.Nil(t, conns)
}

func TestSynthesizeFillsSourceCount(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"summary":            "the arc of the story",
		"key_insight":        "one big insight",
		"timeline_span":      "1976 - 2025",
		"source_count":       0,
		"verification_notes": []string{},
	})
	require.NoError(t, err)

	gen := &stubGenerator{fn: func(generation.Request) (json.RawMessage, error) {
		return payload, nil
	}}
	synth := NewSynthesizer(gen)

	entries := []types.TimelineEntry{
		{ID: "ms_001", Sources: []string{"https://a", "https://b"}},
		{
			ID:      "ms_002",
			Sources: []string{"https://b"},
			Details: &types.EntryDetail{Sources: []string{"https://c"}},
		},
	}

	result, err := synth.Synthesize(context.Background(), "Apple", "en", entries)

	require.NoError(t, err)
	assert.Equal(t, "the arc of the story", result.Summary)
	assert.Equal(t, 3, result.SourceCount)
}

func TestCountSources(t *testing.T) {
	entries := []types.TimelineEntry{
		{Sources: []string{"https://a", ""}},
		{Sources: []string{"https://a"}, Details: &types.EntryDetail{Sources: []string{"https://b"}}},
	}
	assert.Equal(t, 2, CountSources(entries))
}
