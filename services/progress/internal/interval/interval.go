// Package interval merges and measures watched time ranges of a video.
// All functions are pure; callers own the slices they pass in.
package interval

import (
	"math"
	"sort"
)

// Interval is one contiguous span of playback, in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Valid reports whether the interval can be merged into a set.
func (iv Interval) Valid() bool {
	return iv.Start >= 0 && iv.Start < iv.End
}

// Duration is End - Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Merge folds incoming into existing and returns the union as a set sorted by
// Start in which no interval touches or overlaps the next one.
// An invalid incoming interval is dropped and existing is returned as is.
func Merge(existing []Interval, incoming Interval) []Interval {
	if !incoming.Valid() {
		return existing
	}

	work := make([]Interval, 0, len(existing)+1)
	work = append(work, existing...)
	work = append(work, incoming)
	sort.Slice(work, func(i, j int) bool { return work[i].Start < work[j].Start })

	merged := make([]Interval, 0, len(work))
	cur := work[0]
	for _, next := range work[1:] {
		// >= so that abutting spans coalesce too.
		if cur.End >= next.Start {
			cur.End = math.Max(cur.End, next.End)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}

// Normalize folds arbitrary intervals into a set, dropping invalid ones.
func Normalize(raw []Interval) []Interval {
	out := []Interval{}
	for _, iv := range raw {
		out = Merge(out, iv)
	}
	return out
}

// TotalWatched sums the length of every interval in set.
func TotalWatched(set []Interval) float64 {
	var total float64
	for _, iv := range set {
		total += iv.End - iv.Start
	}
	return total
}

// Progress returns the watched share of videoDuration as a percentage rounded
// half up to one decimal and capped at 100. A non-positive duration yields 0.
func Progress(set []Interval, videoDuration float64) float64 {
	if videoDuration <= 0 {
		return 0
	}
	pct := TotalWatched(set) / videoDuration * 100
	pct = math.Floor(pct*10+0.5) / 10
	return math.Min(pct, 100)
}

// Sorted reports whether set holds the merge invariant: ascending by Start,
// every interval valid, and a gap between each interval and the next.
func Sorted(set []Interval) bool {
	for i, iv := range set {
		if !iv.Valid() {
			return false
		}
		if i > 0 && set[i-1].End >= iv.Start {
			return false
		}
	}
	return true
}
