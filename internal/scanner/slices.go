package scanner

import (
	"fmt"
	"time"
)

// TimeSlice is one bounded sub-range of the lookback window, searched
// independently so each query stays under the service's 1000-result window.
// The range is [Start, End).
type TimeSlice struct {
	Start time.Time
	End   time.Time
}

// DateFilter renders the slice as a created-date search predicate.
func (s TimeSlice) DateFilter() string {
	return fmt.Sprintf("created:%s..%s", s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"))
}

// Slices partitions the lookback window ending at now into contiguous,
// non-overlapping slices of at most width days, newest first. The oldest
// slice is clamped to the window start, never extended past it.
func Slices(now time.Time, lookbackDays, widthDays int) []TimeSlice {
	width := time.Duration(widthDays) * 24 * time.Hour
	windowStart := now.Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	var slices []TimeSlice
	end := now
	for end.After(windowStart) {
		start := end.Add(-width)
		if start.Before(windowStart) {
			start = windowStart
		}
		slices = append(slices, TimeSlice{Start: start, End: end})
		end = start
	}
	return slices
}
