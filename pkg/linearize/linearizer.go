// Package linearize merges independent per-worker report streams into one
// globally time-ordered, diff-consistent sequence and answers cumulative
// "since cutoff T" queries incrementally.
package linearize

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/mathutil"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

// Diagnostic records a malformed-feed finding. Invariant violations degrade a
// single test's view; they never unwind the session.
type Diagnostic struct {
	WorkerID string
	Detail   string
}

// Stats counts engine activity for observability. All mutation is
// single-goroutine, so plain ints suffice.
type Stats struct {
	Ingested    int64
	Admitted    int64
	Splices     int64
	Repairs     int64
	Truncations int64
	Violations  int64
}

// Linearizer owns the per-worker timelines, the merged linear sequence, and
// the aggregate cache for one logical test.
type Linearizer struct {
	workers map[string]*workerTimeline
	linear  []*report.Report
	cache   *AggregateCache
	diags   []Diagnostic
	stats   Stats

	// Highest cumulative coverage counters observed across admitted reports.
	// Replay-phase reports reconstruct already-known history; they are only
	// admitted when they do not regress either counter.
	maxBehaviors    int
	maxFingerprints int

	// checked enables the full sequence-invariant re-check after every
	// mutation. On by default in tests, off in production ingest loops.
	checked bool
}

// New creates an empty linearizer.
func New() *Linearizer {
	return &Linearizer{
		workers: make(map[string]*workerTimeline),
		cache:   NewAggregateCache(),
	}
}

// NewChecked creates a linearizer that re-verifies the sequence invariants
// after every mutation.
func NewChecked() *Linearizer {
	ln := New()
	ln.checked = true

	return ln
}

func (ln *Linearizer) worker(id string) *workerTimeline {
	wt, ok := ln.workers[id]
	if !ok {
		wt = &workerTimeline{}
		ln.workers[id] = wt
	}

	return wt
}

// Ingest processes one raw report: locates it on its worker's own time axis,
// computes its incremental contribution, and splices it into the merged
// sequence. Reports may arrive in any order across workers; within one worker
// non-decreasing elapsed time is assumed for correctness, not for safety.
// It returns true when the report was admitted into the linear sequence.
func (ln *Linearizer) Ingest(r *report.Report) bool {
	ln.stats.Ingested++

	wt := ln.worker(r.WorkerID)
	pos := wt.insertPos(r.Elapsed)

	var prev *report.Report
	if pos > 0 {
		prev = wt.reports[pos-1]
	}

	// Worker-relative incremental contribution.
	if prev == nil {
		r.CountsDiff = r.Counts
		r.ElapsedDiff = r.Elapsed
		r.TimestampMono = r.Timestamp
	} else {
		r.CountsDiff = r.Counts.Sub(prev.Counts)
		r.ElapsedDiff = r.Elapsed - prev.Elapsed
		r.TimestampMono = maxTime(r.Timestamp, prev.TimestampMono.Add(r.ElapsedDiff))
	}

	malformed := !r.CountsDiff.NonNegative() || r.ElapsedDiff < 0

	// Stale or duplicate reports stay in worker-local history for audit, but a
	// negative diff must not reach the linear sequence.
	wt.insert(pos, r)

	if malformed {
		ln.diagnose(r.WorkerID, fmt.Sprintf(
			"non-monotonic report at elapsed %v: counts diff %+v, elapsed diff %v",
			r.Elapsed, r.CountsDiff, r.ElapsedDiff))

		return false
	}

	// A non-tail worker insert means some already-seen report's diff was
	// computed against the wrong predecessor: the worker-order successor.
	var succ *report.Report
	if pos+1 < len(wt.reports) {
		succ = wt.reports[pos+1]
	}

	if succ != nil && r.TimestampMono.After(succ.TimestampMono) {
		// The feed reordered this worker's stream past a report that is
		// already ordered earlier: splicing r in would double-count its
		// contribution with no repairable successor downstream.
		ln.diagnose(r.WorkerID, fmt.Sprintf(
			"out-of-order arrival within worker: elapsed %v ordered after elapsed %v",
			r.Elapsed, succ.Elapsed))

		return false
	}

	if !ln.admit(r) {
		return false
	}

	// The successor only needs repair when it was itself admitted; rejected
	// reports live in worker history but contribute nothing downstream.
	succIdx := -1
	if succ != nil {
		succIdx = ln.linearIndexOf(succ)
	}

	idx := ln.splice(r, succIdx)

	if succIdx >= 0 {
		ln.repair(succ, r)
	}

	ln.stats.Truncations += ln.cache.truncate(idx, r.TimestampMono)

	// The repaired successor's cached contribution is stale even in entries
	// whose cutoff excludes the new report itself. It shifted to succIdx+1
	// when the insert landed at or before it.
	if succIdx >= 0 {
		ln.stats.Truncations += ln.cache.invalidateFrom(succIdx + 1)
	}

	if ln.checked {
		ln.checkInvariants()
	}

	return true
}

// admit applies the replay filter: replay-phase reports reconstruct known
// history and must not regress the visible timeline, so they are admitted only
// when both distinct-coverage counters are at or above the current maxima.
func (ln *Linearizer) admit(r *report.Report) bool {
	if r.Phase != report.PhaseReplay {
		return true
	}

	return r.Behaviors >= ln.maxBehaviors && r.Fingerprints >= ln.maxFingerprints
}

// splice inserts an admitted report into the linear sequence by its
// synthesized monotonic timestamp. The insert is retroactive-capable:
// cross-worker interleaving is only resolved once all workers' events are
// seen, so it may land anywhere. When the report has an admitted worker-order
// successor at succIdx, the insert is clamped to stay before it so the diff
// repair and cache truncation cover the same suffix. Returns the insertion
// index.
func (ln *Linearizer) splice(r *report.Report, succIdx int) int {
	idx := sort.Search(len(ln.linear), func(i int) bool {
		return ln.linear[i].TimestampMono.After(r.TimestampMono)
	})

	if succIdx >= 0 && idx > succIdx {
		// Equal ordering keys: keep worker order within the tie.
		idx = succIdx
	}

	ln.linear = append(ln.linear, nil)
	copy(ln.linear[idx+1:], ln.linear[idx:])
	ln.linear[idx] = r

	ln.stats.Admitted++
	ln.maxBehaviors = mathutil.Max(ln.maxBehaviors, r.Behaviors)
	ln.maxFingerprints = mathutil.Max(ln.maxFingerprints, r.Fingerprints)

	if idx < len(ln.linear)-1 {
		ln.stats.Splices++
	}

	return idx
}

// linearIndexOf locates an already-admitted report in the linear sequence by
// identity, or -1 when it was never admitted.
func (ln *Linearizer) linearIndexOf(target *report.Report) int {
	i := sort.Search(len(ln.linear), func(i int) bool {
		return !ln.linear[i].TimestampMono.Before(target.TimestampMono)
	})

	for ; i < len(ln.linear); i++ {
		if ln.linear[i] == target {
			return i
		}

		if ln.linear[i].TimestampMono.After(target.TimestampMono) {
			break
		}
	}

	return -1
}

// repair recomputes the diff of the worker-order successor of a retroactive
// insert: its diff was originally computed against a different predecessor.
// The ordering key of an already-admitted report is stable; only its
// incremental contribution is rewritten.
func (ln *Linearizer) repair(succ, r *report.Report) {
	succ.CountsDiff = succ.Counts.Sub(r.Counts)
	succ.ElapsedDiff = succ.Elapsed - r.Elapsed

	if !succ.CountsDiff.NonNegative() || succ.ElapsedDiff < 0 {
		ln.diagnose(succ.WorkerID, fmt.Sprintf(
			"repair produced negative diff at elapsed %v against predecessor at %v",
			succ.Elapsed, r.Elapsed))

		// Degrade to a zero contribution rather than corrupt the
		// cumulative series.
		succ.CountsDiff = report.StatusCounts{}
		succ.ElapsedDiff = 0
	}

	ln.stats.Repairs++
}

// diagnose records a malformed-feed finding.
func (ln *Linearizer) diagnose(workerID, detail string) {
	ln.stats.Violations++
	ln.diags = append(ln.diags, Diagnostic{WorkerID: workerID, Detail: detail})
}

// checkInvariants verifies the linear sequence invariants: the ordering key
// never moves backward and cumulative diffs never go negative.
func (ln *Linearizer) checkInvariants() {
	var running report.StatusCounts

	var elapsed time.Duration

	for i, r := range ln.linear {
		if i > 0 && r.TimestampMono.Before(ln.linear[i-1].TimestampMono) {
			ln.diagnose(r.WorkerID, fmt.Sprintf(
				"linear sequence order violated at index %d", i))
		}

		running = running.Add(r.CountsDiff)
		elapsed += r.ElapsedDiff

		if !running.NonNegative() || elapsed < 0 {
			ln.diagnose(r.WorkerID, fmt.Sprintf(
				"cumulative totals regressed at index %d", i))
		}
	}
}

// Len returns the number of admitted reports in the linear sequence.
func (ln *Linearizer) Len() int {
	return len(ln.linear)
}

// Linear returns a snapshot of the merged sequence for plotting. The returned
// slice is a copy; the pointed-to reports must be treated as immutable.
func (ln *Linearizer) Linear() []*report.Report {
	out := make([]*report.Report, len(ln.linear))
	copy(out, ln.linear)

	return out
}

// Last returns the most recently ordered admitted report, or nil.
func (ln *Linearizer) Last() *report.Report {
	if len(ln.linear) == 0 {
		return nil
	}

	return ln.linear[len(ln.linear)-1]
}

// CountsSince returns cumulative status counts over all admitted reports with
// ordering key at or after cutoff. A zero cutoff means "since the start".
func (ln *Linearizer) CountsSince(cutoff time.Time) report.StatusCounts {
	return ln.cache.CountsSince(ln.linear, cutoff)
}

// ElapsedSince returns cumulative worker execution time accumulated at or
// after cutoff. A zero cutoff means "since the start".
func (ln *Linearizer) ElapsedSince(cutoff time.Time) time.Duration {
	return ln.cache.ElapsedSince(ln.linear, cutoff)
}

// CountsPrefix returns the per-entry cumulative status counts from cutoff,
// aligned with the corresponding suffix of the linear sequence.
func (ln *Linearizer) CountsPrefix(cutoff time.Time) []report.StatusCounts {
	return ln.cache.CountsPrefix(ln.linear, cutoff)
}

// MaxBehaviors returns the highest cumulative behavior count admitted so far.
func (ln *Linearizer) MaxBehaviors() int {
	return ln.maxBehaviors
}

// MaxFingerprints returns the highest cumulative fingerprint count admitted
// so far.
func (ln *Linearizer) MaxFingerprints() int {
	return ln.maxFingerprints
}

// Diagnostics returns all malformed-feed findings recorded so far.
func (ln *Linearizer) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(ln.diags))
	copy(out, ln.diags)

	return out
}

// Stats returns engine activity counters.
func (ln *Linearizer) Stats() Stats {
	return ln.stats
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}

	return b
}
