package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

const hallucinationInstructions = `You are a fact verification specialist. You receive recent timeline entries
together with the search evidence gathered for each one. Decide which
entries are fabricated or unverifiable.

Rules:
- Remove an entry only when the evidence contradicts it or when a claimed
  concrete event has no trace in the evidence at all.
- Plausible entries with weak evidence stay; absence of coverage for a
  minor event is not proof of fabrication.
- "no evidence found" means the search returned nothing; judge those
  entries on plausibility alone and keep them unless clearly invented.
- Return the ids to remove and one short reason per id.`

// HallucinationFilter cross-checks current-year and future-dated entries
// against the search evidence retained by the detail phase, and removes the
// ones the model judges fabricated. It fails open: any error keeps every
// entry.
type HallucinationFilter struct {
	gen      generation.Generator
	evidence *EvidenceCache
	now      func() time.Time
	log      *zap.Logger
}

// NewHallucinationFilter creates a filter over the shared evidence cache.
func NewHallucinationFilter(gen generation.Generator, evidence *EvidenceCache, log *zap.Logger) *HallucinationFilter {
	return &HallucinationFilter{gen: gen, evidence: evidence, now: time.Now, log: log}
}

// Filter returns the entries that survive verification plus the number
// removed. Entries dated before the current year pass through unexamined.
func (f *HallucinationFilter) Filter(ctx context.Context, entries []types.TimelineEntry) ([]types.TimelineEntry, int) {
	defer f.evidence.Clear()

	cutoff := f.now().Year()
	var recent []types.TimelineEntry
	for _, e := range entries {
		if year, ok := timeline.YearOf(e.Date); ok && year >= cutoff {
			recent = append(recent, e)
		}
	}
	if len(recent) == 0 {
		return entries, 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entries to verify: %d\n\n", len(recent))
	for _, e := range recent {
		evidence, ok := f.evidence.Get(e.ID)
		if !ok || evidence == "" {
			evidence = "no evidence found"
		}
		fmt.Fprintf(&b, "## %s\nDate: %s\nTitle: %s\nDescription: %s\nEvidence:\n%s\n\n",
			e.ID, e.Date, e.Title, e.Description, evidence)
	}

	check, err := generation.GenerateAs[hallucinationCheck](ctx, f.gen, generation.Request{
		System: hallucinationInstructions,
		Prompt: b.String(),
		Schema: hallucinationSchema,
	})
	if err != nil {
		f.log.Warn("hallucination check failed, keeping all entries", zap.Error(err))
		return entries, 0
	}

	remove := make(map[string]bool, len(check.RemoveIDs))
	for _, id := range check.RemoveIDs {
		remove[id] = true
	}
	if len(remove) > 0 {
		f.log.Info("removing unverified entries",
			zap.Strings("ids", check.RemoveIDs),
			zap.Strings("reasons", check.Reasons))
	}

	kept := make([]types.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if !remove[e.ID] {
			kept = append(kept, e)
		}
	}
	return kept, len(entries) - len(kept)
}
