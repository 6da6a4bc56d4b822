package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/search"
	"github.com/chronolab/chrono/pkg/session"
	"github.com/chronolab/chrono/pkg/store"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

// scriptedGenerator answers every pipeline stage with canned payloads,
// dispatching on the instruction text.
type scriptedGenerator struct {
	mu    sync.Mutex
	calls int

	failMilestones bool
	failDetailFor  string
	gapNodes       []map[string]any
	gapConnections []map[string]any
}

func (g *scriptedGenerator) Generate(_ context.Context, req generation.Request) (json.RawMessage, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	switch {
	case strings.Contains(req.System, "research planning specialist"):
		return mustJSON(map[string]any{
			"topic":      "placeholder",
			"topic_type": "product",
			"language":   "en",
			"complexity": map[string]any{
				"level": "light", "time_span": "2007-2010", "parallel_threads": 1,
				"estimated_total_nodes": 2, "reasoning": "narrow topic",
			},
			"research_threads": []map[string]any{
				{"name": "Main", "description": "the whole story", "priority": 1, "estimated_nodes": 2},
			},
			"estimated_duration": map[string]any{"min_seconds": 60, "max_seconds": 120},
			"credits_cost":       5,
			"user_facing": map[string]any{
				"title": "Research plan", "summary": "short plan", "duration_text": "about a minute",
				"credits_text": "5 credits", "thread_names": []string{"Main"},
			},
		}), nil

	case strings.Contains(req.System, "timeline research specialist"):
		if g.failMilestones {
			return nil, errors.New("model unavailable")
		}
		return mustJSON(map[string]any{
			"nodes": []map[string]any{
				{"date": "2007-01-09", "title": "Launch", "significance": "revolutionary", "description": "the launch"},
				{"date": "2008-07-11", "title": "App Store", "significance": "high", "description": "the store"},
			},
		}), nil

	case strings.Contains(req.System, "deduplication specialist"):
		return mustJSON(map[string]any{"groups": []any{}}), nil

	case strings.Contains(req.System, "deep research specialist"):
		if g.failDetailFor != "" && strings.Contains(req.Prompt, "Title: "+g.failDetailFor) {
			return nil, errors.New("model unavailable")
		}
		return mustJSON(map[string]any{
			"key_features": []string{"feature"}, "impact": "big", "key_people": []string{},
			"context": "background", "sources": []string{},
		}), nil

	case strings.Contains(req.System, "fact verification specialist"):
		return mustJSON(map[string]any{"remove_ids": []string{}, "reasons": []string{}}), nil

	case strings.Contains(req.System, "completeness analyst"):
		return mustJSON(map[string]any{
			"gap_nodes":   g.gapNodes,
			"connections": g.gapConnections,
		}), nil

	case strings.Contains(req.System, "research editor"):
		return mustJSON(map[string]any{
			"summary": "the arc", "key_insight": "insight", "timeline_span": "2007 - 2008",
			"source_count": 0, "verification_notes": []string{},
		}), nil
	}
	return nil, fmt.Errorf("unexpected instruction: %.40s", req.System)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

type cannedSearch struct{}

func (cannedSearch) Search(_ context.Context, query string, _ int) (*search.Response, error) {
	return &search.Response{
		Answer:  "summary",
		Results: []search.Result{{Title: "hit", URL: "https://example.com/hit", Content: "content"}},
	}, nil
}

func newTestOrchestrator(gen *scriptedGenerator, st store.Store) (*Orchestrator, *session.Manager) {
	sessions := session.NewManager(nil)
	registry := generation.NewRegistry(gen)
	return New(registry, cannedSearch{}, st, sessions, 2, 2, zap.NewNop()), sessions
}

func drain(t *testing.T, s *session.Session) []session.Event {
	t.Helper()
	var events []session.Event
	for {
		evt, ok, done := s.Next(context.Background(), 2*time.Second)
		if ok {
			events = append(events, evt)
			continue
		}
		if done {
			return events
		}
		t.Fatal("timed out waiting for session events")
	}
}

func eventTypes(events []session.Event) []types.EventType {
	out := make([]types.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestFullRunEventSequence(t *testing.T) {
	gen := &scriptedGenerator{}
	st := store.NewMemoryStore()
	orch, _ := newTestOrchestrator(gen, st)

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iPhone", Language: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "en", s.Proposal.Language)

	orch.Run(context.Background(), s)
	events := drain(t, s)

	assert.Equal(t, []types.EventType{
		types.EventProgress,
		types.EventSkeleton,
		types.EventProgress,
		types.EventNodeDetail,
		types.EventNodeDetail,
		types.EventProgress,
		types.EventProgress,
		types.EventSynthesis,
		types.EventComplete,
	}, eventTypes(events))

	complete := events[len(events)-1].Payload.(types.CompletePayload)
	assert.Equal(t, 2, complete.TotalNodes)
	assert.Equal(t, 2, complete.DetailCompleted)
	assert.Equal(t, session.StatusCompleted, s.Status())

	stored, err := st.GetByTopic(context.Background(), "iPhone")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.TotalNodes)
	require.NotNil(t, stored.Synthesis)
	assert.Equal(t, "the arc", stored.Synthesis.Summary)
}

func TestDetailFailureReducesCompletedCount(t *testing.T) {
	gen := &scriptedGenerator{failDetailFor: "App Store"}
	orch, _ := newTestOrchestrator(gen, store.NewMemoryStore())

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iPhone"})
	require.NoError(t, err)

	orch.Run(context.Background(), s)
	events := drain(t, s)

	var details []types.NodeDetailPayload
	var complete types.CompletePayload
	for _, evt := range events {
		switch p := evt.Payload.(type) {
		case types.NodeDetailPayload:
			details = append(details, p)
		case types.CompletePayload:
			complete = p
		}
	}

	require.Len(t, details, 1)
	assert.Equal(t, 2, complete.TotalNodes)
	assert.Equal(t, 1, complete.DetailCompleted)
	assert.Equal(t, session.StatusCompleted, s.Status())
}

func TestGapAdditionsProduceSecondSkeleton(t *testing.T) {
	gen := &scriptedGenerator{
		gapNodes: []map[string]any{
			{"date": "2007-06-29", "title": "US sales begin", "significance": "high", "description": "retail"},
		},
		gapConnections: []map[string]any{
			{"from_id": "ms_001", "to_id": "ms_002", "relationship": "led to", "type": "enabled"},
		},
	}
	orch, _ := newTestOrchestrator(gen, store.NewMemoryStore())

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iPhone"})
	require.NoError(t, err)

	orch.Run(context.Background(), s)
	events := drain(t, s)

	var skeletons []types.SkeletonPayload
	var synthesis types.SynthesisResult
	detailIDs := map[string]bool{}
	for _, evt := range events {
		switch p := evt.Payload.(type) {
		case types.SkeletonPayload:
			skeletons = append(skeletons, p)
		case types.SynthesisResult:
			synthesis = p
		case types.NodeDetailPayload:
			detailIDs[p.NodeID] = true
		}
	}

	require.Len(t, skeletons, 2)
	assert.Len(t, skeletons[0].Nodes, 2)
	require.Len(t, skeletons[1].Nodes, 3)

	var gapID string
	for _, n := range skeletons[1].Nodes {
		if n.IsGapEntry {
			gapID = n.ID
		}
	}
	require.NotEmpty(t, gapID, "one node of the second skeleton is the gap addition")
	assert.True(t, detailIDs[gapID], "gap additions get enriched too")

	require.Len(t, synthesis.Connections, 1)
	assert.Equal(t, "ms_002", synthesis.Connections[0].ToID)
}

func TestGapDuplicateFoldedIntoExistingEntry(t *testing.T) {
	gen := &scriptedGenerator{
		gapNodes: []map[string]any{
			{"date": "2007-01-09", "title": "launch", "significance": "medium", "description": "dup"},
		},
		gapConnections: []map[string]any{
			{"from_id": "ms_001", "to_id": "ms_002", "relationship": "led to", "type": "enabled"},
		},
	}
	orch, _ := newTestOrchestrator(gen, store.NewMemoryStore())

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iPhone"})
	require.NoError(t, err)

	orch.Run(context.Background(), s)
	events := drain(t, s)

	var skeletons []types.SkeletonPayload
	var synthesis types.SynthesisResult
	var complete types.CompletePayload
	for _, evt := range events {
		switch p := evt.Payload.(type) {
		case types.SkeletonPayload:
			skeletons = append(skeletons, p)
		case types.SynthesisResult:
			synthesis = p
		case types.CompletePayload:
			complete = p
		}
	}

	require.Len(t, skeletons, 2)
	require.Len(t, skeletons[1].Nodes, 2, "a gap node repeating an existing title merges away")

	seen := map[string]bool{}
	var ids []string
	for _, n := range skeletons[1].Nodes {
		norm := timeline.NormalizeTitle(n.Title)
		assert.False(t, seen[norm], "normalized title %q appears twice", norm)
		seen[norm] = true
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"ms_001", "ms_002"}, ids, "the merged entry keeps the first member's id")

	assert.Equal(t, 2, complete.TotalNodes)
	require.Len(t, synthesis.Connections, 1, "connections to surviving ids are kept")
	assert.Equal(t, "ms_001", synthesis.Connections[0].FromID)
}

func TestStoredRunReplaysWithoutGeneration(t *testing.T) {
	st := store.NewMemoryStore()
	detail := &types.EntryDetail{Impact: "big"}
	require.NoError(t, st.Upsert(context.Background(), &types.StoredRun{
		Topic:    "iPhone",
		Proposal: types.Proposal{Topic: "iPhone", Language: "en"},
		Entries: []types.TimelineEntry{
			{ID: "ms_001", Date: "2007-01-09", Title: "Launch", Details: detail},
		},
		Synthesis:  &types.SynthesisResult{Summary: "stored story"},
		TotalNodes: 1,
	}))

	gen := &scriptedGenerator{}
	orch, _ := newTestOrchestrator(gen, st)

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iphone"})
	require.NoError(t, err)
	require.NotNil(t, s.Stored)

	orch.Run(context.Background(), s)
	events := drain(t, s)

	assert.Equal(t, []types.EventType{
		types.EventSkeleton,
		types.EventNodeDetail,
		types.EventSynthesis,
		types.EventComplete,
	}, eventTypes(events))
	assert.Equal(t, 0, gen.calls, "replay must not touch the model")
	assert.Equal(t, session.StatusCompleted, s.Status())
}

func TestRunFailsWhenEveryUnitFails(t *testing.T) {
	gen := &scriptedGenerator{failMilestones: true}
	orch, _ := newTestOrchestrator(gen, store.NewMemoryStore())

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iPhone"})
	require.NoError(t, err)

	orch.Run(context.Background(), s)
	events := drain(t, s)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.EventResearchError, last.Type)
	payload := last.Payload.(types.ErrorPayload)
	assert.Equal(t, cherr.ErrGenerationFailed, payload.Error)
	assert.Equal(t, session.StatusFailed, s.Status())
}

func TestStartResearchRejectsEmptyTopic(t *testing.T) {
	orch, _ := newTestOrchestrator(&scriptedGenerator{}, store.NewMemoryStore())

	_, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "   "})
	require.Error(t, err)
	rerr, ok := err.(*cherr.ResearchError)
	require.True(t, ok)
	assert.Equal(t, cherr.ErrMissingRequired, rerr.Code)
}

func TestLanguageOverrideWinsOverDetection(t *testing.T) {
	orch, _ := newTestOrchestrator(&scriptedGenerator{}, store.NewMemoryStore())

	s, err := orch.StartResearch(context.Background(), types.ResearchRequest{Topic: "iPhone", Language: "zh"})
	require.NoError(t, err)
	assert.Equal(t, "zh", s.Proposal.Language)
}

func TestProgressMessagesLocalized(t *testing.T) {
	assert.Equal(t, progressMessages["zh"][phaseSkeleton], progressMessage("zh", phaseSkeleton))
	assert.Equal(t, progressMessages["ja"][phaseSynthesis], progressMessage("ja", phaseSynthesis))
	assert.Equal(t, progressMessages["en"][phaseGaps], progressMessage("ko", phaseGaps))
}
