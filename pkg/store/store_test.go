package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolab/chrono/pkg/session"
	"github.com/chronolab/chrono/pkg/types"
)

func TestTopicKeyNormalizes(t *testing.T) {
	assert.Equal(t, TopicKey("iPhone"), TopicKey("  iphone "))
	assert.NotEqual(t, TopicKey("iPhone"), TopicKey("iPad"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	missing, err := s.GetByTopic(ctx, "iPhone")
	require.NoError(t, err)
	assert.Nil(t, missing)

	run := &types.StoredRun{
		Topic:    "iPhone",
		Proposal: types.Proposal{Topic: "iPhone", Language: "en"},
		Entries: []types.TimelineEntry{
			{ID: "ms_001", Date: "2007-01-09", Title: "Launch"},
		},
		TotalNodes:  1,
		SourceCount: 2,
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, s.Upsert(ctx, run))

	got, err := s.GetByTopic(ctx, "  IPHONE ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.Entries, got.Entries)
	assert.Equal(t, 1, got.TotalNodes)

	// Mutating the returned slice must not leak into the store.
	got.Entries[0].Title = "mutated"
	again, err := s.GetByTopic(ctx, "iPhone")
	require.NoError(t, err)
	assert.Equal(t, "Launch", again.Entries[0].Title)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &types.StoredRun{
		Topic:   "topic",
		Entries: []types.TimelineEntry{{ID: "ms_001"}, {ID: "ms_002"}},
	}))
	require.NoError(t, s.Upsert(ctx, &types.StoredRun{
		Topic:   "topic",
		Entries: []types.TimelineEntry{{ID: "ms_001"}},
	}))

	got, err := s.GetByTopic(ctx, "topic")
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
}

// recordingSink collects replayed events in order.
type recordingSink struct {
	events []session.Event
}

func (r *recordingSink) Push(evt session.Event) {
	r.events = append(r.events, evt)
}

func TestReplayEventOrder(t *testing.T) {
	detail := &types.EntryDetail{Impact: "large"}
	run := &types.StoredRun{
		Topic: "iPhone",
		Entries: []types.TimelineEntry{
			{ID: "ms_001", Date: "2007-01-09", Title: "Launch", Details: detail},
			{ID: "ms_002", Date: "2008-07-11", Title: "App Store"},
		},
		Synthesis:  &types.SynthesisResult{Summary: "story"},
		TotalNodes: 2,
	}

	sink := &recordingSink{}
	NewReplayEngine().Replay(run, sink)

	require.Len(t, sink.events, 4)
	assert.Equal(t, types.EventSkeleton, sink.events[0].Type)
	assert.Equal(t, types.EventNodeDetail, sink.events[1].Type)
	assert.Equal(t, types.EventSynthesis, sink.events[2].Type)
	assert.Equal(t, types.EventComplete, sink.events[3].Type)

	skeleton := sink.events[0].Payload.(types.SkeletonPayload)
	assert.Len(t, skeleton.Nodes, 2)

	nodeDetail := sink.events[1].Payload.(types.NodeDetailPayload)
	assert.Equal(t, "ms_001", nodeDetail.NodeID)

	complete := sink.events[3].Payload.(types.CompletePayload)
	assert.Equal(t, 2, complete.TotalNodes)
	assert.Equal(t, 2, complete.DetailCompleted)
}

func TestReplayWithoutSynthesis(t *testing.T) {
	run := &types.StoredRun{
		Topic:      "topic",
		Entries:    []types.TimelineEntry{{ID: "ms_001", Date: "2000-01-01"}},
		TotalNodes: 1,
	}

	sink := &recordingSink{}
	NewReplayEngine().Replay(run, sink)

	require.Len(t, sink.events, 2)
	assert.Equal(t, types.EventSkeleton, sink.events[0].Type)
	assert.Equal(t, types.EventComplete, sink.events[1].Type)
}
