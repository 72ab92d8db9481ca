package linearize

import (
	"sort"
	"time"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

// cacheEntry is a partial prefix-sum over the linear sequence, beginning at
// the first index whose ordering key is at or after the cutoff. The stored
// arrays are always a valid prefix-sum of linear[startIndex : startIndex+len];
// anything past that is recomputed lazily on the next read.
type cacheEntry struct {
	cutoff     time.Time
	startIndex int
	counts     []report.StatusCounts
	elapsed    []time.Duration
}

// AggregateCache answers "cumulative totals since cutoff T" queries in
// amortized O(1) per new report. Cutoffs are a small bounded set (test start,
// last behavior change), so the cache is keyed by exact cutoff value rather
// than any interval logic.
type AggregateCache struct {
	entries map[int64]*cacheEntry
}

// NewAggregateCache creates an empty cache.
func NewAggregateCache() *AggregateCache {
	return &AggregateCache{entries: make(map[int64]*cacheEntry)}
}

func cutoffKey(cutoff time.Time) int64 {
	if cutoff.IsZero() {
		return 0
	}

	return cutoff.UnixNano()
}

// entry returns the cache entry for cutoff, creating and positioning it on
// first use, and extends its prefix arrays over any suffix of the linear
// sequence admitted since the last read.
func (c *AggregateCache) entry(linear []*report.Report, cutoff time.Time) *cacheEntry {
	key := cutoffKey(cutoff)

	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{
			cutoff:     cutoff,
			startIndex: bisectCutoff(linear, cutoff),
		}
		c.entries[key] = e
	}

	c.extend(e, linear)

	return e
}

// extend folds the not-yet-cached suffix into the prefix arrays.
func (c *AggregateCache) extend(e *cacheEntry, linear []*report.Report) {
	var (
		counts  report.StatusCounts
		elapsed time.Duration
	)

	if n := len(e.counts); n > 0 {
		counts = e.counts[n-1]
		elapsed = e.elapsed[n-1]
	}

	for i := e.startIndex + len(e.counts); i < len(linear); i++ {
		counts = counts.Add(linear[i].CountsDiff)
		elapsed += linear[i].ElapsedDiff

		e.counts = append(e.counts, counts)
		e.elapsed = append(e.elapsed, elapsed)
	}
}

// truncate adjusts all cache entries for an insert at index idx with ordering
// key mono. Entries whose cached prefix covers idx lose the suffix from the
// insertion point on; entries positioned after the insert shift right. It
// returns the number of entries that lost cached values.
func (c *AggregateCache) truncate(idx int, mono time.Time) int64 {
	var truncated int64

	for _, e := range c.entries {
		switch {
		case idx <= e.startIndex && inRange(mono, e.cutoff):
			// The insert belongs to this entry's range but lands before its
			// current start: reposition and rebuild lazily.
			e.startIndex = idx
			e.counts = nil
			e.elapsed = nil
			truncated++
		case idx <= e.startIndex:
			// Insert before the entry's range: indices shift right.
			e.startIndex++
		case idx < e.startIndex+len(e.counts):
			keep := idx - e.startIndex
			e.counts = e.counts[:keep]
			e.elapsed = e.elapsed[:keep]
			truncated++
		}
	}

	return truncated
}

// invalidateFrom truncates every entry whose cached prefix covers idx, used
// when the diff fields of linear[idx] were rewritten in place by a repair.
// It returns the number of entries that lost cached values.
func (c *AggregateCache) invalidateFrom(idx int) int64 {
	var truncated int64

	for _, e := range c.entries {
		if idx >= e.startIndex && idx < e.startIndex+len(e.counts) {
			keep := idx - e.startIndex
			e.counts = e.counts[:keep]
			e.elapsed = e.elapsed[:keep]
			truncated++
		}
	}

	return truncated
}

// CountsSince returns cumulative status counts for entries with ordering key
// at or after cutoff.
func (c *AggregateCache) CountsSince(linear []*report.Report, cutoff time.Time) report.StatusCounts {
	e := c.entry(linear, cutoff)
	if len(e.counts) == 0 {
		return report.StatusCounts{}
	}

	return e.counts[len(e.counts)-1]
}

// ElapsedSince returns cumulative elapsed execution time for entries with
// ordering key at or after cutoff.
func (c *AggregateCache) ElapsedSince(linear []*report.Report, cutoff time.Time) time.Duration {
	e := c.entry(linear, cutoff)
	if len(e.elapsed) == 0 {
		return 0
	}

	return e.elapsed[len(e.elapsed)-1]
}

// CountsPrefix returns a copy of the per-entry cumulative status counts from
// cutoff, aligned with linear[startIndex:].
func (c *AggregateCache) CountsPrefix(linear []*report.Report, cutoff time.Time) []report.StatusCounts {
	e := c.entry(linear, cutoff)

	out := make([]report.StatusCounts, len(e.counts))
	copy(out, e.counts)

	return out
}

// bisectCutoff returns the first index whose ordering key is at or after
// cutoff. A zero cutoff selects the whole sequence.
func bisectCutoff(linear []*report.Report, cutoff time.Time) int {
	if cutoff.IsZero() {
		return 0
	}

	return sort.Search(len(linear), func(i int) bool {
		return !linear[i].TimestampMono.Before(cutoff)
	})
}

// inRange reports whether an ordering key falls at or after the cutoff.
func inRange(mono time.Time, cutoff time.Time) bool {
	return cutoff.IsZero() || !mono.Before(cutoff)
}
