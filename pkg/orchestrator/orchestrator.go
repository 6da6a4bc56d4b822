// Package orchestrator drives a full research run through its phases and
// pushes the resulting events onto the run's session.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/research"
	"github.com/chronolab/chrono/pkg/search"
	"github.com/chronolab/chrono/pkg/session"
	"github.com/chronolab/chrono/pkg/store"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

// Orchestrator owns the run lifecycle: cache lookup, proposal planning,
// pipeline execution and persistence.
type Orchestrator struct {
	planner     *Planner
	registry    *generation.Registry
	search      search.Provider
	store       store.Store
	replay      *store.ReplayEngine
	sessions    *session.Manager
	threadLimit int
	detailLimit int
	log         *zap.Logger
}

// New wires an orchestrator. threadLimit and detailLimit of 0 select the
// pipeline defaults.
func New(registry *generation.Registry, sp search.Provider, st store.Store, sessions *session.Manager, threadLimit, detailLimit int, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		planner:     NewPlanner(registry.For(generation.StageProposal)),
		registry:    registry,
		search:      sp,
		store:       st,
		replay:      store.NewReplayEngine(),
		sessions:    sessions,
		threadLimit: threadLimit,
		detailLimit: detailLimit,
		log:         log,
	}
}

// StartResearch validates the request, checks the store for a finished run
// of the same topic, and otherwise plans a fresh proposal. It returns the
// created session; Run must be started on it by the caller.
func (o *Orchestrator) StartResearch(ctx context.Context, req types.ResearchRequest) (*session.Session, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, cherr.New(cherr.ErrMissingRequired, "topic is required")
	}

	stored, err := o.store.GetByTopic(ctx, req.Topic)
	if err != nil {
		// A broken cache must not block fresh research.
		o.log.Warn("stored run lookup failed", zap.String("topic", req.Topic), zap.Error(err))
		stored = nil
	}
	if stored != nil {
		o.log.Info("serving stored run", zap.String("topic", req.Topic))
		s := o.sessions.Create(stored.Topic, stored.Proposal.Language, stored.Proposal)
		s.Stored = stored
		return s, nil
	}

	proposal, err := o.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.sessions.Create(proposal.Topic, proposal.Language, *proposal), nil
}

// Run executes or replays one session's research. It always closes the
// session, including on panic, so stream consumers never hang.
func (o *Orchestrator) Run(ctx context.Context, s *session.Session) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("research run panicked",
				zap.String("session", s.ID),
				zap.Any("panic", r))
			s.Push(session.Event{
				Type: types.EventResearchError,
				Payload: types.ErrorPayload{
					Error:   cherr.ErrInternal,
					Message: fmt.Sprintf("internal error: %v", r),
				},
			})
			s.Close(session.StatusFailed)
		}
		// No-op when the run already closed with its own status.
		s.Close(session.StatusFailed)
	}()

	if s.Stored != nil {
		o.replay.Replay(s.Stored, s)
		s.Close(session.StatusCompleted)
		return
	}
	o.runPipeline(ctx, s)
}

func (o *Orchestrator) runPipeline(ctx context.Context, s *session.Session) {
	proposal := s.Proposal
	language := proposal.Language
	log := o.log.With(zap.String("session", s.ID), zap.String("topic", proposal.Topic))

	ids := timeline.NewIDAllocator("ms")
	detector := timeline.NewGenerationDetector(o.registry.For(generation.StageDedup))
	dedup := timeline.NewDeduplicator(detector, language, log)
	runner := research.NewThreadRunner(o.registry.For(generation.StageMilestone), o.search, ids, dedup, o.threadLimit, log)
	evidence := research.NewEvidenceCache()
	enricher := research.NewDetailEnricher(o.registry.For(generation.StageDetail), o.search, evidence, o.detailLimit, log)
	filter := research.NewHallucinationFilter(o.registry.For(generation.StageHallucination), evidence, log)
	gaps := research.NewGapAnalyzer(o.registry.For(generation.StageGapAnalysis), ids, log)
	synth := research.NewSynthesizer(o.registry.For(generation.StageSynthesis))

	o.pushProgress(s, language, phaseSkeleton)
	entries := runner.Run(ctx, proposal)
	if len(entries) == 0 {
		log.Error("every research unit failed")
		s.Push(session.Event{
			Type: types.EventResearchError,
			Payload: types.ErrorPayload{
				Error:   cherr.ErrGenerationFailed,
				Message: progressMessageError(language),
			},
		})
		s.Close(session.StatusFailed)
		return
	}
	s.Push(session.Event{Type: types.EventSkeleton, Payload: types.SkeletonPayload{Nodes: entries}})

	o.pushProgress(s, language, phaseDetails)
	onDetail := func(p types.NodeDetailPayload) {
		s.Push(session.Event{Type: types.EventNodeDetail, Payload: p})
	}
	entries, detailCompleted := enricher.EnrichAll(ctx, proposal.Topic, language, entries, onDetail)

	entries, removed := filter.Filter(ctx, entries)
	if removed > 0 {
		log.Info("entries removed by verification", zap.Int("removed", removed))
	}

	o.pushProgress(s, language, phaseGaps)
	added, connections := gaps.Analyze(ctx, proposal.Topic, language, entries)
	if len(added) > 0 {
		// Gap additions can duplicate entries the threads already found;
		// merged entries keep the first member's id, so surviving
		// connections stay resolvable.
		entries = dedup.Deduplicate(ctx, append(entries, added...))
		connections = timeline.ValidateConnections(connections, entries)
	}
	if len(added) > 0 || removed > 0 {
		timeline.SortByDate(entries)
		s.Push(session.Event{Type: types.EventSkeleton, Payload: types.SkeletonPayload{Nodes: entries}})
	}
	if len(added) > 0 {
		var gapCompleted int
		entries, gapCompleted = enricher.EnrichAll(ctx, proposal.Topic, language, entries, onDetail)
		detailCompleted += gapCompleted
	}

	o.pushProgress(s, language, phaseSynthesis)
	synthesis, err := synth.Synthesize(ctx, proposal.Topic, language, entries)
	if err != nil {
		log.Warn("synthesis failed, completing without it", zap.Error(err))
	} else {
		synthesis.Connections = connections
		s.Push(session.Event{Type: types.EventSynthesis, Payload: *synthesis})
	}

	s.Push(session.Event{
		Type: types.EventComplete,
		Payload: types.CompletePayload{
			TotalNodes:      len(entries),
			DetailCompleted: detailCompleted,
		},
	})

	o.persist(ctx, proposal, entries, synthesis, log)
	s.Close(session.StatusCompleted)
}

// persist stores the finished run. Persistence failures are logged only;
// the stream has already completed successfully.
func (o *Orchestrator) persist(ctx context.Context, proposal types.Proposal, entries []types.TimelineEntry, synthesis *types.SynthesisResult, log *zap.Logger) {
	run := &types.StoredRun{
		Topic:       proposal.Topic,
		Proposal:    proposal,
		Entries:     entries,
		Synthesis:   synthesis,
		TotalNodes:  len(entries),
		SourceCount: research.CountSources(entries),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := o.store.Upsert(ctx, run); err != nil {
		log.Error("failed to persist run", zap.Error(err))
	}
}

func (o *Orchestrator) pushProgress(s *session.Session, language, phase string) {
	s.Push(session.Event{
		Type: types.EventProgress,
		Payload: types.ProgressPayload{
			Phase:   phase,
			Message: progressMessage(language, phase),
			Percent: phasePercent[phase],
		},
	})
}

// progressMessageError is the localized copy for a run that produced no
// timeline at all.
func progressMessageError(language string) string {
	switch language {
	case "zh":
		return "研究失败：未能生成任何时间线条目"
	case "ja":
		return "調査に失敗しました。タイムラインを生成できませんでした"
	default:
		return "research failed: no timeline entries could be produced"
	}
}
