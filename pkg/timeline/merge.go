package timeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chronolab/chrono/pkg/types"
)

// nonLatinScripts maps language codes whose native script is not Latin to
// the Unicode ranges that identify that script in a title.
var nonLatinScripts = map[string][]*unicode.RangeTable{
	"zh": {unicode.Han},
	"ja": {unicode.Han, unicode.Hiragana, unicode.Katakana},
	"ko": {unicode.Hangul},
	"ru": {unicode.Cyrillic},
	"uk": {unicode.Cyrillic},
	"ar": {unicode.Arabic},
	"he": {unicode.Hebrew},
	"th": {unicode.Thai},
	"el": {unicode.Greek},
}

// NormalizeTitle trims, collapses whitespace and case-folds a title for the
// exact-title dedup layer.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func containsScript(s string, tables []*unicode.RangeTable) bool {
	for _, r := range s {
		for _, t := range tables {
			if unicode.Is(t, r) {
				return true
			}
		}
	}
	return false
}

// pickTitle chooses a merged group's title. When the target language uses a
// non-Latin script, a title containing that script wins; ties and the Latin
// case fall back to the longest title.
func pickTitle(group []types.TimelineEntry, language string) string {
	tables, nonLatin := nonLatinScripts[language]

	best := ""
	bestMatches := false
	for _, e := range group {
		matches := nonLatin && containsScript(e.Title, tables)
		switch {
		case matches && !bestMatches:
			best, bestMatches = e.Title, true
		case matches == bestMatches && utf8.RuneCountInString(e.Title) > utf8.RuneCountInString(best):
			best = e.Title
		}
	}
	return best
}

// mergeGroup collapses a duplicate group into one canonical entry. The first
// member keeps its id; significance takes the highest rank, description and
// subtitle the longest text, sources the union, and the date the first
// member date that is not a year-only placeholder.
func mergeGroup(group []types.TimelineEntry, language string) types.TimelineEntry {
	merged := group[0]

	for _, e := range group[1:] {
		if e.Significance.Rank() > merged.Significance.Rank() {
			merged.Significance = e.Significance
		}
		// Longest is measured in runes, not bytes.
		if utf8.RuneCountInString(e.Description) > utf8.RuneCountInString(merged.Description) {
			merged.Description = e.Description
		}
		if utf8.RuneCountInString(e.Subtitle) > utf8.RuneCountInString(merged.Subtitle) {
			merged.Subtitle = e.Subtitle
		}
		if e.Details != nil && merged.Details == nil {
			merged.Details = e.Details
		}
	}

	merged.Title = pickTitle(group, language)
	merged.Date = pickDate(group)
	merged.Sources = unionSources(group)
	return merged
}

func pickDate(group []types.TimelineEntry) string {
	for _, e := range group {
		if !IsYearPlaceholder(e.Date) {
			return e.Date
		}
	}
	return group[0].Date
}

func unionSources(group []types.TimelineEntry) []string {
	seen := make(map[string]bool)
	var union []string
	for _, e := range group {
		for _, src := range e.Sources {
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			union = append(union, src)
		}
	}
	return union
}
