// Package timeline implements the merge machinery for timeline entries:
// id allocation, date ordering, three-layer deduplication and connection
// validation.
package timeline

import (
	"sort"
	"strings"

	"github.com/chronolab/chrono/pkg/types"
)

// YearOf extracts the year component of a date string. ok is false when the
// date does not start with four digits.
func YearOf(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	year := 0
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return 0, false
		}
		year = year*10 + int(r-'0')
	}
	return year, true
}

// MonthOf extracts the month component of a YYYY-MM... date string,
// defaulting to 1 when absent or unparsable.
func MonthOf(date string) int {
	if len(date) < 7 || date[4] != '-' {
		return 1
	}
	month := 0
	for _, r := range date[5:7] {
		if r < '0' || r > '9' {
			return 1
		}
		month = month*10 + int(r-'0')
	}
	if month < 1 || month > 12 {
		return 1
	}
	return month
}

// IsYearPlaceholder reports whether a date is the year-only placeholder
// form (YYYY-01-01).
func IsYearPlaceholder(date string) bool {
	return strings.HasSuffix(date, "-01-01")
}

// SortByDate sorts entries ascending by date string, stably, with id as the
// tie-breaker so equal dates keep a deterministic order.
func SortByDate(entries []types.TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].ID < entries[j].ID
	})
}
