package store

import (
	"github.com/chronolab/chrono/pkg/session"
	"github.com/chronolab/chrono/pkg/types"
)

// EventSink receives replayed events in order. *session.Session satisfies
// it.
type EventSink interface {
	Push(evt session.Event)
}

// ReplayEngine turns a stored run back into the event sequence a live run
// would have produced, without any generation or search calls.
type ReplayEngine struct{}

// NewReplayEngine creates a replay engine.
func NewReplayEngine() *ReplayEngine {
	return &ReplayEngine{}
}

// Replay pushes the stored run's events: the full skeleton, one detail per
// enriched entry, the synthesis when present, and the completion marker.
func (r *ReplayEngine) Replay(run *types.StoredRun, sink EventSink) {
	sink.Push(session.Event{
		Type:    types.EventSkeleton,
		Payload: types.SkeletonPayload{Nodes: run.Entries},
	})

	for _, entry := range run.Entries {
		if entry.Details == nil {
			continue
		}
		sink.Push(session.Event{
			Type:    types.EventNodeDetail,
			Payload: types.NodeDetailPayload{NodeID: entry.ID, Details: *entry.Details},
		})
	}

	if run.Synthesis != nil {
		sink.Push(session.Event{
			Type:    types.EventSynthesis,
			Payload: *run.Synthesis,
		})
	}

	sink.Push(session.Event{
		Type: types.EventComplete,
		Payload: types.CompletePayload{
			TotalNodes:      run.TotalNodes,
			DetailCompleted: run.TotalNodes,
		},
	})
}
