package linearize

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

// bruteCountsSince recomputes cumulative counts from scratch, the reference
// for cache consistency.
func bruteCountsSince(linear []*report.Report, cutoff time.Time) report.StatusCounts {
	var total report.StatusCounts

	for _, r := range linear {
		if cutoff.IsZero() || !r.TimestampMono.Before(cutoff) {
			total = total.Add(r.CountsDiff)
		}
	}

	return total
}

func bruteElapsedSince(linear []*report.Report, cutoff time.Time) time.Duration {
	var total time.Duration

	for _, r := range linear {
		if cutoff.IsZero() || !r.TimestampMono.Before(cutoff) {
			total += r.ElapsedDiff
		}
	}

	return total
}

func TestAggregateCache_MatchesBruteForceAfterEveryMutation(t *testing.T) {
	t.Parallel()

	const trials = 25

	for seed := int64(0); seed < trials; seed++ {
		ln := NewChecked()
		rng := rand.New(rand.NewSource(seed))
		streams := monotoneStreams()

		cutoffs := []time.Time{
			{},
			time.Unix(0, int64(100*float64(time.Second))).UTC(),
			time.Unix(0, int64(110*float64(time.Second))).UTC(),
		}

		for i := range streams {
			streams[i].next = 0
		}

		remaining := 0
		for _, s := range streams {
			remaining += len(s.reports)
		}

		for remaining > 0 {
			i := rng.Intn(len(streams))

			s := streams[i]
			if s.next >= len(s.reports) {
				continue
			}

			clone := *s.reports[s.next]
			ln.Ingest(&clone)

			s.next++
			remaining--

			// The cache must agree with a from-scratch recomputation after
			// every mutation, including retroactive splices.
			for _, cutoff := range cutoffs {
				assert.Equal(t,
					bruteCountsSince(ln.linear, cutoff), ln.CountsSince(cutoff),
					"seed %d cutoff %v", seed, cutoff)
				assert.Equal(t,
					bruteElapsedSince(ln.linear, cutoff), ln.ElapsedSince(cutoff),
					"seed %d cutoff %v", seed, cutoff)
			}
		}
	}
}

func TestAggregateCache_LazyExtension(t *testing.T) {
	t.Parallel()

	ln := New()

	require.True(t, ln.Ingest(genReport(workerA, 0, 100, 1)))
	assert.Equal(t, 1, ln.CountsSince(time.Time{}).Valid)

	// New tail entries extend the cached prefix instead of rebuilding it.
	require.True(t, ln.Ingest(genReport(workerA, 5, 110, 3)))
	require.True(t, ln.Ingest(genReport(workerA, 9, 120, 8)))
	assert.Equal(t, 8, ln.CountsSince(time.Time{}).Valid)

	entry := ln.cache.entries[cutoffKey(time.Time{})]
	require.NotNil(t, entry)
	assert.Len(t, entry.counts, 3)
	assert.Equal(t, 0, entry.startIndex)
}

func TestAggregateCache_TruncationOnRetroactiveInsert(t *testing.T) {
	t.Parallel()

	ln := New()

	require.True(t, ln.Ingest(genReport(workerA, 0, 100, 1)))
	require.True(t, ln.Ingest(genReport(workerA, 5, 110, 3)))

	// Populate the cache over the two-entry sequence.
	assert.Equal(t, 3, ln.CountsSince(time.Time{}).Valid)

	// B@0 splices in at index 1; the cached suffix from there is dropped and
	// lazily rebuilt on the next read.
	require.True(t, ln.Ingest(genReport(workerB, 0, 105, 2)))

	entry := ln.cache.entries[cutoffKey(time.Time{})]
	require.NotNil(t, entry)
	assert.Len(t, entry.counts, 1)

	assert.Equal(t, 5, ln.CountsSince(time.Time{}).Valid)
	assert.Len(t, entry.counts, 3)
}

func TestAggregateCache_CutoffSelectsSuffix(t *testing.T) {
	t.Parallel()

	ln := New()

	require.True(t, ln.Ingest(genReport(workerA, 0, 100, 1)))
	require.True(t, ln.Ingest(genReport(workerA, 5, 110, 3)))
	require.True(t, ln.Ingest(genReport(workerA, 9, 120, 8)))

	cutoff := time.Unix(0, int64(110*float64(time.Second))).UTC()

	// Entries at or after the cutoff: diffs 2 and 5.
	assert.Equal(t, 7, ln.CountsSince(cutoff).Valid)
	assert.Equal(t, 9*time.Second, ln.ElapsedSince(cutoff))

	prefix := ln.CountsPrefix(cutoff)
	require.Len(t, prefix, 2)
	assert.Equal(t, 2, prefix[0].Valid)
	assert.Equal(t, 7, prefix[1].Valid)
}

func TestAggregateCache_InsertBeforeCachedRangeShiftsStart(t *testing.T) {
	t.Parallel()

	ln := New()

	require.True(t, ln.Ingest(genReport(workerA, 0, 200, 5)))

	cutoff := time.Unix(0, int64(150*float64(time.Second))).UTC()
	assert.Equal(t, 5, ln.CountsSince(cutoff).Valid)

	entry := ln.cache.entries[cutoffKey(cutoff)]
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.startIndex)

	// A report ordered before the cutoff lands at index 0; the cached range
	// shifts right and keeps its values.
	require.True(t, ln.Ingest(genReport(workerB, 0, 100, 2)))

	assert.Equal(t, 1, entry.startIndex)
	assert.Equal(t, 5, ln.CountsSince(cutoff).Valid)
	assert.Equal(t, 7, ln.CountsSince(time.Time{}).Valid)
}

// A late same-worker arrival repairs its successor's diff. Cache entries whose
// cutoff excludes the late report but includes the repaired successor still
// hold the successor's old contribution and must be invalidated.
func TestAggregateCache_RepairInvalidatesCachedSuccessor(t *testing.T) {
	t.Parallel()

	ln := NewChecked()

	require.True(t, ln.Ingest(genReport(workerA, 0, 100, 1)))
	require.True(t, ln.Ingest(genReport(workerA, 10, 200, 9)))

	cutoffs := []time.Time{
		{},
		time.Unix(0, int64(150*float64(time.Second))).UTC(),
		time.Unix(0, int64(200*float64(time.Second))).UTC(),
	}

	// Populate an entry per cutoff over the two-report sequence.
	for _, cutoff := range cutoffs {
		assert.Equal(t, bruteCountsSince(ln.linear, cutoff), ln.CountsSince(cutoff))
	}

	// A@5 splices between the two and forces A@10's diff down to 9 - 4. Its
	// ordering key (120s) is below the 150s and 200s cutoffs, so those entries
	// are untouched by insert-position truncation alone.
	require.True(t, ln.Ingest(genReport(workerA, 5, 120, 4)))

	for _, cutoff := range cutoffs {
		assert.Equal(t, bruteCountsSince(ln.linear, cutoff), ln.CountsSince(cutoff),
			"cutoff %v", cutoff)
		assert.Equal(t, bruteElapsedSince(ln.linear, cutoff), ln.ElapsedSince(cutoff),
			"cutoff %v", cutoff)
	}

	assert.Equal(t, 9, ln.CountsSince(time.Time{}).Valid)
	assert.Equal(t, 5, ln.CountsSince(cutoffs[1]).Valid)
	assert.Equal(t, 5*time.Second, ln.ElapsedSince(cutoffs[2]))
	assert.Empty(t, ln.Diagnostics())
}

// Late within-worker arrivals trigger the repair path on every splice; the
// cache must still agree with a from-scratch recomputation after each one.
func TestAggregateCache_MatchesBruteForceUnderLateArrivals(t *testing.T) {
	t.Parallel()

	const trials = 25

	cutoffs := []time.Time{
		{},
		time.Unix(0, int64(1010*float64(time.Second))).UTC(),
		time.Unix(0, int64(1025*float64(time.Second))).UTC(),
	}

	for seed := int64(0); seed < trials; seed++ {
		ln := NewChecked()

		for _, r := range shuffledReports(rand.New(rand.NewSource(seed)), lateArrivalStreams()) {
			require.True(t, ln.Ingest(r), "seed %d", seed)

			for _, cutoff := range cutoffs {
				assert.Equal(t,
					bruteCountsSince(ln.linear, cutoff), ln.CountsSince(cutoff),
					"seed %d cutoff %v", seed, cutoff)
				assert.Equal(t,
					bruteElapsedSince(ln.linear, cutoff), ln.ElapsedSince(cutoff),
					"seed %d cutoff %v", seed, cutoff)
			}
		}

		assert.Empty(t, ln.Diagnostics(), "seed %d", seed)
	}
}

func TestAggregateCache_CountsPrefixIsACopy(t *testing.T) {
	t.Parallel()

	ln := New()

	require.True(t, ln.Ingest(genReport(workerA, 0, 100, 1)))
	require.True(t, ln.Ingest(genReport(workerA, 5, 110, 3)))

	prefix := ln.CountsPrefix(time.Time{})
	require.Len(t, prefix, 2)

	prefix[0].Valid = 999

	assert.Equal(t, 1, ln.CountsPrefix(time.Time{})[0].Valid)
}
