package research

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/types"
)

func removeJSON(t *testing.T, ids ...string) json.RawMessage {
	t.Helper()
	reasons := make([]string, 0, len(ids))
	for _, id := range ids {
		reasons = append(reasons, id+": no trace in evidence")
	}
	data, err := json.Marshal(map[string]any{"remove_ids": ids, "reasons": reasons})
	require.NoError(t, err)
	return data
}

func TestFilterRemovesFlaggedEntries(t *testing.T) {
	gen := &stubGenerator{fn: func(generation.Request) (json.RawMessage, error) {
		return removeJSON(t, "ms_003"), nil
	}}
	evidence := NewEvidenceCache()
	evidence.Put("ms_002", "solid coverage")
	filter := NewHallucinationFilter(gen, evidence, zap.NewNop())
	filter.now = fixedNow(2025)

	entries := []types.TimelineEntry{
		{ID: "ms_001", Date: "1990-05-01", Title: "Old, never examined"},
		{ID: "ms_002", Date: "2025-03-01", Title: "Verified"},
		{ID: "ms_003", Date: "2025-08-01", Title: "Fabricated"},
	}

	out, removed := filter.Filter(context.Background(), entries)

	assert.Equal(t, 1, removed)
	require.Len(t, out, 2)
	assert.Equal(t, "ms_001", out[0].ID)
	assert.Equal(t, "ms_002", out[1].ID)

	_, kept := evidence.Get("ms_002")
	assert.False(t, kept, "evidence cache is cleared after the pass")
}

func TestFilterFailsOpen(t *testing.T) {
	gen := &stubGenerator{fn: func(generation.Request) (json.RawMessage, error) {
		return nil, errors.New("model unavailable")
	}}
	filter := NewHallucinationFilter(gen, NewEvidenceCache(), zap.NewNop())
	filter.now = fixedNow(2025)

	entries := []types.TimelineEntry{
		{ID: "ms_001", Date: "2025-03-01", Title: "Recent"},
	}

	out, removed := filter.Filter(context.Background(), entries)

	assert.Equal(t, 0, removed)
	assert.Len(t, out, 1)
}

func TestFilterSkipsWhenNothingRecent(t *testing.T) {
	gen := &stubGenerator{fn: func(generation.Request) (json.RawMessage, error) {
		return removeJSON(t), nil
	}}
	filter := NewHallucinationFilter(gen, NewEvidenceCache(), zap.NewNop())
	filter.now = fixedNow(2025)

	entries := []types.TimelineEntry{
		{ID: "ms_001", Date: "1990-05-01", Title: "Old"},
		{ID: "ms_002", Date: "2001-10-23", Title: "Also old"},
	}

	out, removed := filter.Filter(context.Background(), entries)

	assert.Equal(t, 0, removed)
	assert.Len(t, out, 2)
	assert.Equal(t, 0, gen.calls)
}
