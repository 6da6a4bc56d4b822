package timeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/types"
)

// DuplicateDetector finds groups of entries describing the same real-world
// event. Returned groups hold indices into the submitted slice.
type DuplicateDetector interface {
	FindDuplicateGroups(ctx context.Context, entries []types.TimelineEntry) ([][]int, error)
}

const (
	// bucketSplitThreshold bounds the size of one semantic-comparison call.
	bucketSplitThreshold = 12
	// boundaryWindow is how many entries on each side of a year boundary
	// the cross-boundary scan inspects.
	boundaryWindow = 3
)

// Deduplicator merges semantically duplicate timeline entries in three
// layers: exact normalized titles, year-bucketed semantic comparison, and a
// cross-boundary scan over adjacent year buckets. The layers run once, in
// order; there is no fixpoint iteration.
type Deduplicator struct {
	detector DuplicateDetector
	language string
	log      *zap.Logger
}

// NewDeduplicator creates a deduplicator for one run's target language.
func NewDeduplicator(detector DuplicateDetector, language string, log *zap.Logger) *Deduplicator {
	return &Deduplicator{detector: detector, language: language, log: log}
}

// Deduplicate runs the three merge layers over a stable date-sorted view of
// the input and returns the surviving entries sorted by date. A failing
// semantic call leaves its bucket unmerged; it never fails the pipeline.
func (d *Deduplicator) Deduplicate(ctx context.Context, entries []types.TimelineEntry) []types.TimelineEntry {
	out := make([]types.TimelineEntry, len(entries))
	copy(out, entries)
	SortByDate(out)
	if len(out) < 2 {
		return out
	}

	out = d.mergeExactTitles(out)
	out = d.mergeBuckets(ctx, out)
	out = d.mergeBoundaries(ctx, out)
	SortByDate(out)
	return out
}

// mergeExactTitles merges every group sharing a normalized title. This layer
// has no external cost.
func (d *Deduplicator) mergeExactTitles(entries []types.TimelineEntry) []types.TimelineEntry {
	var order []string
	groups := make(map[string][]types.TimelineEntry)
	for _, e := range entries {
		key := NormalizeTitle(e.Title)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	out := make([]types.TimelineEntry, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		merged := mergeGroup(group, d.language)
		d.log.Debug("merged exact-title duplicates",
			zap.String("id", merged.ID),
			zap.Int("count", len(group)))
		out = append(out, merged)
	}
	return out
}

// bucket is one semantic-comparison unit: indices into the working slice.
type bucket struct {
	year    int
	known   bool
	indices []int
}

// yearBuckets groups date-sorted entries by year. Entries with unparsable
// dates land in a single trailing "unknown" bucket and are never compared
// across buckets.
func yearBuckets(entries []types.TimelineEntry) []bucket {
	var buckets []bucket
	byYear := make(map[int]int)
	unknown := bucket{known: false}

	for i, e := range entries {
		year, ok := YearOf(e.Date)
		if !ok {
			unknown.indices = append(unknown.indices, i)
			continue
		}
		pos, seen := byYear[year]
		if !seen {
			byYear[year] = len(buckets)
			buckets = append(buckets, bucket{year: year, known: true, indices: []int{i}})
			continue
		}
		buckets[pos].indices = append(buckets[pos].indices, i)
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].year < buckets[j].year })
	if len(unknown.indices) > 0 {
		buckets = append(buckets, unknown)
	}
	return buckets
}

// semanticBuckets prepares the buckets submitted to the detector, splitting
// oversized year buckets into first/second half of year to bound call cost.
func semanticBuckets(entries []types.TimelineEntry) []bucket {
	var out []bucket
	for _, b := range yearBuckets(entries) {
		if !b.known || len(b.indices) <= bucketSplitThreshold {
			out = append(out, b)
			continue
		}
		early := bucket{year: b.year, known: true}
		late := bucket{year: b.year, known: true}
		for _, idx := range b.indices {
			if MonthOf(entries[idx].Date) <= 6 {
				early.indices = append(early.indices, idx)
			} else {
				late.indices = append(late.indices, idx)
			}
		}
		if len(early.indices) > 0 {
			out = append(out, early)
		}
		if len(late.indices) > 0 {
			out = append(out, late)
		}
	}
	return out
}

// mergeBuckets runs the semantic detector over each bucket independently and
// applies the returned groups.
func (d *Deduplicator) mergeBuckets(ctx context.Context, entries []types.TimelineEntry) []types.TimelineEntry {
	var groups [][]int
	for _, b := range semanticBuckets(entries) {
		if len(b.indices) < 2 {
			continue
		}
		window := project(entries, b.indices)
		local, err := d.detector.FindDuplicateGroups(ctx, window)
		if err != nil {
			d.log.Warn("semantic dedup failed, bucket passes through unmerged",
				zap.Int("year", b.year),
				zap.Int("size", len(b.indices)),
				zap.Error(err))
			continue
		}
		for _, g := range local {
			if abs := mapBack(b.indices, g); len(abs) >= 2 {
				groups = append(groups, abs)
			}
		}
	}

	out := d.applyGroups(entries, groups)
	SortByDate(out)
	return out
}

// mergeBoundaries scans every pair of chronologically adjacent year buckets,
// submitting the trailing entries of the earlier and the leading entries of
// the later as one cross-boundary window.
func (d *Deduplicator) mergeBoundaries(ctx context.Context, entries []types.TimelineEntry) []types.TimelineEntry {
	out := entries
	for pair := 0; ; pair++ {
		buckets := yearBuckets(out)
		if n := len(buckets); n > 0 && !buckets[n-1].known {
			buckets = buckets[:n-1]
		}
		if pair+1 >= len(buckets) {
			return out
		}

		earlier := buckets[pair].indices
		later := buckets[pair+1].indices
		window := append([]int{}, tail(earlier, boundaryWindow)...)
		window = append(window, head(later, boundaryWindow)...)
		if len(window) < 2 {
			continue
		}

		local, err := d.detector.FindDuplicateGroups(ctx, project(out, window))
		if err != nil {
			d.log.Warn("boundary dedup failed, window passes through unmerged",
				zap.Int("year", buckets[pair].year),
				zap.Error(err))
			continue
		}

		var groups [][]int
		for _, g := range local {
			if abs := mapBack(window, g); len(abs) >= 2 {
				groups = append(groups, abs)
			}
		}
		if len(groups) > 0 {
			out = d.applyGroups(out, groups)
			SortByDate(out)
		}
	}
}

// applyGroups merges each duplicate group into the position of its first
// member and drops the rest. Indices appearing in more than one group are
// honored for the first group only.
func (d *Deduplicator) applyGroups(entries []types.TimelineEntry, groups [][]int) []types.TimelineEntry {
	if len(groups) == 0 {
		return entries
	}

	taken := make(map[int]bool)
	mergedAt := make(map[int]types.TimelineEntry)
	removed := make(map[int]bool)

	for _, g := range groups {
		var members []int
		for _, idx := range g {
			if idx < 0 || idx >= len(entries) || taken[idx] {
				continue
			}
			taken[idx] = true
			members = append(members, idx)
		}
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)
		merged := mergeGroup(project(entries, members), d.language)
		mergedAt[members[0]] = merged
		for _, idx := range members[1:] {
			removed[idx] = true
		}
		d.log.Debug("merged semantic duplicates",
			zap.String("id", merged.ID),
			zap.Int("count", len(members)))
	}

	out := make([]types.TimelineEntry, 0, len(entries))
	for i, e := range entries {
		if removed[i] {
			continue
		}
		if merged, ok := mergedAt[i]; ok {
			out = append(out, merged)
			continue
		}
		out = append(out, e)
	}
	return out
}

func project(entries []types.TimelineEntry, indices []int) []types.TimelineEntry {
	out := make([]types.TimelineEntry, len(indices))
	for i, idx := range indices {
		out[i] = entries[idx]
	}
	return out
}

func mapBack(indices []int, group []int) []int {
	var abs []int
	for _, g := range group {
		if g >= 0 && g < len(indices) {
			abs = append(abs, indices[g])
		}
	}
	return abs
}

func head(s []int, n int) []int {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

func tail(s []int, n int) []int {
	if len(s) < n {
		n = len(s)
	}
	return s[len(s)-n:]
}
