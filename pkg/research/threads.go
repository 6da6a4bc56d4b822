package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/search"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

const milestoneInstructions = `You are a timeline research specialist. Build the timeline skeleton for one
research dimension of a topic.

Workflow:
1. From your own knowledge, list the milestone events for this dimension.
2. Use the provided search context to verify dates and catch recent events
   your knowledge may not cover.
3. Merge, drop duplicates, and order chronologically.

Output rules:
- date is ISO format (YYYY-MM-DD); use YYYY-01-01 when only the year is
  known and YYYY-MM-01 when only the month is known.
- revolutionary significance should be rare (1-3 entries); most entries are
  high or medium.
- description is a 2-3 sentence overview.
- Stay within roughly 20 percent of the requested entry count.
- Write all text fields in the requested language.`

// ThreadRunner fans milestone discovery out across a proposal's research
// threads, bounded by a global concurrency limit, and merges the results
// through the deduplicator. Phase-scoped runs deduplicate per phase first,
// then once more across the concatenation.
type ThreadRunner struct {
	gen    generation.Generator
	search search.Provider
	ids    *timeline.IDAllocator
	dedup  *timeline.Deduplicator
	slots  *semaphore.Weighted
	log    *zap.Logger
}

// DefaultThreadConcurrency caps simultaneous research units.
const DefaultThreadConcurrency = 8

// NewThreadRunner creates a runner with the given unit concurrency limit.
func NewThreadRunner(gen generation.Generator, sp search.Provider, ids *timeline.IDAllocator, dedup *timeline.Deduplicator, limit int, log *zap.Logger) *ThreadRunner {
	if limit <= 0 {
		limit = DefaultThreadConcurrency
	}
	return &ThreadRunner{
		gen:    gen,
		search: sp,
		ids:    ids,
		dedup:  dedup,
		slots:  semaphore.NewWeighted(int64(limit)),
		log:    log,
	}
}

// Run executes every thread of the proposal and returns the deduplicated,
// date-sorted entry set. A failed unit contributes nothing but never aborts
// its siblings.
func (r *ThreadRunner) Run(ctx context.Context, proposal types.Proposal) []types.TimelineEntry {
	if len(proposal.ResearchPhases) == 0 {
		entries := r.runThreads(ctx, proposal, proposal.ResearchThreads, "")
		return r.dedup.Deduplicate(ctx, entries)
	}

	// Phases run concurrently; the unit semaphore still bounds total
	// in-flight threads across all of them.
	phaseResults := make([][]types.TimelineEntry, len(proposal.ResearchPhases))
	var eg errgroup.Group
	for i, phase := range proposal.ResearchPhases {
		eg.Go(func() error {
			entries := r.runThreads(ctx, proposal, phase.Threads, phase.Name)
			merged := r.dedup.Deduplicate(ctx, entries)
			for j := range merged {
				merged[j].PhaseName = phase.Name
			}
			phaseResults[i] = merged
			return nil
		})
	}
	eg.Wait()

	var all []types.TimelineEntry
	for _, entries := range phaseResults {
		all = append(all, entries...)
	}
	// Second pass catches duplicates that sit on phase boundaries.
	return r.dedup.Deduplicate(ctx, all)
}

// runThreads launches one unit per thread and joins all of them before
// returning; unit failures are absorbed inside the unit.
func (r *ThreadRunner) runThreads(ctx context.Context, proposal types.Proposal, threads []types.ResearchThread, phaseName string) []types.TimelineEntry {
	results := make([][]types.TimelineEntry, len(threads))
	var eg errgroup.Group
	for i, thread := range threads {
		eg.Go(func() error {
			if err := r.slots.Acquire(ctx, 1); err != nil {
				r.log.Warn("research unit cancelled before start",
					zap.String("thread", thread.Name), zap.Error(err))
				return nil
			}
			defer r.slots.Release(1)

			entries, err := r.runUnit(ctx, proposal, thread, phaseName)
			if err != nil {
				r.log.Warn("research unit failed",
					zap.String("thread", thread.Name),
					zap.String("phase", phaseName),
					zap.Error(err))
				return nil
			}
			results[i] = entries
			return nil
		})
	}
	eg.Wait()

	var all []types.TimelineEntry
	for _, entries := range results {
		all = append(all, entries...)
	}
	return all
}

// runUnit performs one thread's work: two concurrent searches, one scoped
// generation call, and id assignment.
func (r *ThreadRunner) runUnit(ctx context.Context, proposal types.Proposal, thread types.ResearchThread, phaseName string) ([]types.TimelineEntry, error) {
	historicalQuery := fmt.Sprintf("%s %s major milestones timeline", proposal.Topic, thread.Name)
	latestQuery := fmt.Sprintf("%s %s latest developments %d", proposal.Topic, thread.Name, time.Now().Year())

	var historicalCtx, latestCtx string
	var historicalURLs, latestURLs []string
	var sg errgroup.Group
	sg.Go(func() error {
		var err error
		historicalCtx, historicalURLs, err = search.SearchAndFormat(ctx, r.search, historicalQuery)
		if err != nil {
			r.log.Warn("historical search failed", zap.String("thread", thread.Name), zap.Error(err))
		}
		return nil
	})
	sg.Go(func() error {
		var err error
		latestCtx, latestURLs, err = search.SearchAndFormat(ctx, r.search, latestQuery)
		if err != nil {
			r.log.Warn("latest-developments search failed", zap.String("thread", thread.Name), zap.Error(err))
		}
		return nil
	})
	sg.Wait()

	prompt := r.buildPrompt(proposal, thread, phaseName, historicalCtx, latestCtx)
	result, err := generation.GenerateAs[milestoneResult](ctx, r.gen, generation.Request{
		System: milestoneInstructions,
		Prompt: prompt,
		Schema: milestoneSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("milestone generation failed: %w", err)
	}

	sources := unionURLs(historicalURLs, latestURLs)
	entries := make([]types.TimelineEntry, 0, len(result.Nodes))
	for _, node := range result.Nodes {
		significance := node.Significance
		if significance == "" {
			significance = types.SignificanceMedium
		}
		entries = append(entries, types.TimelineEntry{
			ID:           r.ids.Next(),
			Date:         node.Date,
			Title:        node.Title,
			Subtitle:     node.Subtitle,
			Significance: significance,
			Description:  node.Description,
			Sources:      sources,
			PhaseName:    phaseName,
		})
	}
	return entries, nil
}

func (r *ThreadRunner) buildPrompt(proposal types.Proposal, thread types.ResearchThread, phaseName, historicalCtx, latestCtx string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", proposal.Topic)
	fmt.Fprintf(&b, "Language: %s\n", proposal.Language)
	fmt.Fprintf(&b, "Research dimension: %s\n", thread.Name)
	fmt.Fprintf(&b, "Dimension scope: %s\n", thread.Description)
	if phaseName != "" {
		fmt.Fprintf(&b, "Time phase: %s\n", phaseName)
	}
	fmt.Fprintf(&b, "Target entry count: %d (within 20%% is fine)\n", thread.EstimatedEntries)
	fmt.Fprintf(&b, "\n## Verification search results\n%s\n", historicalCtx)
	fmt.Fprintf(&b, "\n## Recent developments search results\n%s\n", latestCtx)
	return b.String()
}

func unionURLs(lists ...[]string) []string {
	seen := make(map[string]bool)
	var union []string
	for _, list := range lists {
		for _, u := range list {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			union = append(union, u)
		}
	}
	return union
}
