package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/search"
	"github.com/chronolab/chrono/pkg/timeline"
	"github.com/chronolab/chrono/pkg/types"
)

const detailInstructions = `You are a deep research specialist. You receive one timeline milestone and
must fill in its detail record.

Fields:
- key_features: 3-5 concrete factual points, one sentence each.
- impact: the event's impact and meaning, 2-3 sentences.
- key_people: key people with a short role note each; empty when the event
  has no specific key people.
- context: background and causality - why did this event happen, 2-3
  sentences.

Use the provided search context to correct uncertain facts; when it
conflicts with your knowledge, the search context wins. Write all text
fields in the requested language.`

// EvidenceCache retains per-entry search context between the detail phase
// and the hallucination check. Each enrichment worker writes only its own
// entry's key; the filter clears the cache once it has read it.
type EvidenceCache struct {
	mu sync.Mutex
	m  map[string]string
}

// NewEvidenceCache creates an empty cache.
func NewEvidenceCache() *EvidenceCache {
	return &EvidenceCache{m: make(map[string]string)}
}

// Put stores the search context for one entry id.
func (c *EvidenceCache) Put(id, context string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = context
}

// Get returns the retained context for an entry id, if any.
func (c *EvidenceCache) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	return v, ok
}

// Clear drops all retained context.
func (c *EvidenceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]string)
}

// DefaultDetailConcurrency caps simultaneous enrichment units.
const DefaultDetailConcurrency = 4

// DetailEnricher attaches an EntryDetail to each timeline entry, bounded by
// a fixed concurrency limit. A failed enrichment leaves its entry without a
// detail and never fails the run.
type DetailEnricher struct {
	gen      generation.Generator
	search   search.Provider
	slots    *semaphore.Weighted
	evidence *EvidenceCache
	now      func() time.Time
	log      *zap.Logger
}

// NewDetailEnricher creates an enricher with the given concurrency limit.
func NewDetailEnricher(gen generation.Generator, sp search.Provider, evidence *EvidenceCache, limit int, log *zap.Logger) *DetailEnricher {
	if limit <= 0 {
		limit = DefaultDetailConcurrency
	}
	return &DetailEnricher{
		gen:      gen,
		search:   sp,
		slots:    semaphore.NewWeighted(int64(limit)),
		evidence: evidence,
		now:      time.Now,
		log:      log,
	}
}

// EnrichAll enriches every entry that does not yet carry a detail, invoking
// onDetail as each one completes. It returns the updated entries and the
// number of enrichments that succeeded in this pass, counted once after the
// join rather than from inside the workers.
func (e *DetailEnricher) EnrichAll(ctx context.Context, topic, language string, entries []types.TimelineEntry, onDetail func(types.NodeDetailPayload)) ([]types.TimelineEntry, int) {
	out := make([]types.TimelineEntry, len(entries))
	copy(out, entries)

	var eg errgroup.Group
	for i := range out {
		if out[i].Details != nil {
			continue
		}
		eg.Go(func() error {
			if err := e.slots.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer e.slots.Release(1)

			detail, err := e.enrichOne(ctx, topic, language, out[i])
			if err != nil {
				e.log.Warn("detail enrichment failed",
					zap.String("entry", out[i].ID),
					zap.Error(err))
				return nil
			}
			out[i].Details = detail
			if onDetail != nil {
				onDetail(types.NodeDetailPayload{NodeID: out[i].ID, Details: *detail})
			}
			return nil
		})
	}
	eg.Wait()

	completed := 0
	for i := range out {
		if out[i].Details != nil && entries[i].Details == nil {
			completed++
		}
	}
	return out, completed
}

// enrichOne runs one combined search plus one generation call for an entry.
func (e *DetailEnricher) enrichOne(ctx context.Context, topic, language string, entry types.TimelineEntry) (*types.EntryDetail, error) {
	year, hasYear := timeline.YearOf(entry.Date)
	query := fmt.Sprintf("%s %s", topic, entry.Title)
	if hasYear {
		query = fmt.Sprintf("%s %d", query, year)
	}

	searchCtx, urls, err := search.SearchAndFormat(ctx, e.search, query)
	if err != nil {
		e.log.Warn("detail search failed", zap.String("entry", entry.ID), zap.Error(err))
		searchCtx = "No results found."
	}

	// Evidence for recently dated entries is kept for the hallucination
	// check; the filter clears it after one read pass.
	if hasYear && year >= e.now().Year() {
		e.evidence.Put(entry.ID, searchCtx)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Language: %s\n\n", language)
	fmt.Fprintf(&b, "Date: %s\n", entry.Date)
	fmt.Fprintf(&b, "Title: %s\n", entry.Title)
	fmt.Fprintf(&b, "Description: %s\n", entry.Description)
	fmt.Fprintf(&b, "Significance: %s\n", entry.Significance)
	fmt.Fprintf(&b, "\n## Search context\n%s\n", searchCtx)

	detail, err := generation.GenerateAs[types.EntryDetail](ctx, e.gen, generation.Request{
		System: detailInstructions,
		Prompt: b.String(),
		Schema: detailSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("detail generation failed: %w", err)
	}
	if len(detail.Sources) == 0 {
		detail.Sources = urls
	}
	return &detail, nil
}
