// Package testrun owns the merged view of one logical test: per-worker
// timelines, the linearized sequence, the aggregate cache, and the derived
// read-only status. It performs no bookkeeping of its own beyond wiring those
// components together.
package testrun

import (
	"time"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/linearize"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

// DefaultStaleAfter is the staleness threshold: with no admitted report newer
// than this, the test is considered waiting rather than running.
const DefaultStaleAfter = 5 * time.Minute

// Status is the derived state of a test, recomputed on every read.
type Status string

// Test statuses, in precedence order.
const (
	StatusFailed    Status = "failed"
	StatusShrinking Status = "shrinking"
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
)

// Failure records one observed failing example for a test.
type Failure struct {
	// Callers supply whatever identifies the failure on their side; the
	// engine only needs its presence.
	Label      string
	ObservedAt time.Time
}

// Test is the aggregate root for one logical test under fuzzing.
type Test struct {
	id         string
	ln         *linearize.Linearizer
	failures   []Failure
	staleAfter time.Duration

	// Rolling / corpus observation tallies, kept for display only.
	rollingObserved int
	corpusObserved  int

	loadFinished bool
}

// Option configures a Test.
type Option func(*Test)

// WithStaleAfter overrides the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(tr *Test) { tr.staleAfter = d }
}

// WithChecked enables full invariant re-checking after every mutation.
func WithChecked() Option {
	return func(tr *Test) { tr.ln = linearize.NewChecked() }
}

// New creates a Test for the given identifier.
func New(id string, opts ...Option) *Test {
	tr := &Test{
		id:         id,
		ln:         linearize.New(),
		staleAfter: DefaultStaleAfter,
	}

	for _, opt := range opts {
		opt(tr)
	}

	return tr
}

// ID returns the test identifier.
func (tr *Test) ID() string {
	return tr.id
}

// Ingest feeds one raw report through the linearizer. It reports whether the
// report was admitted into the linear sequence.
func (tr *Test) Ingest(r *report.Report) bool {
	return tr.ln.Ingest(r)
}

// RecordFailure attaches a known failing example.
func (tr *Test) RecordFailure(f Failure) {
	tr.failures = append(tr.failures, f)
}

// RecordObservations accumulates rolling and corpus example tallies.
func (tr *Test) RecordObservations(rolling, corpus int) {
	tr.rollingObserved += rolling
	tr.corpusObserved += corpus
}

// FinishLoad marks the initial bulk load as complete.
func (tr *Test) FinishLoad() {
	tr.loadFinished = true
}

// LoadFinished reports whether the initial bulk load completed.
func (tr *Test) LoadFinished() bool {
	return tr.loadFinished
}

// Failures returns the recorded failing examples.
func (tr *Test) Failures() []Failure {
	out := make([]Failure, len(tr.failures))
	copy(out, tr.failures)

	return out
}

// Observations returns the rolling and corpus example tallies.
func (tr *Test) Observations() (rolling, corpus int) {
	return tr.rollingObserved, tr.corpusObserved
}

// Status derives the test state at the given instant. Precedence: any
// recorded failure wins; then a shrink-phase latest report; then waiting when
// nothing has happened yet or the newest report has gone stale; running
// otherwise.
func (tr *Test) Status(now time.Time) Status {
	if len(tr.failures) > 0 {
		return StatusFailed
	}

	last := tr.ln.Last()
	if last != nil && last.Phase == report.PhaseShrink {
		return StatusShrinking
	}

	if last == nil || tr.Inputs() == 0 || now.Sub(last.Timestamp) > tr.staleAfter {
		return StatusWaiting
	}

	return StatusRunning
}

// Inputs returns the cumulative number of inputs executed across all workers.
func (tr *Test) Inputs() int {
	return tr.ln.CountsSince(time.Time{}).Sum()
}

// Counts returns the cumulative status counts across all workers.
func (tr *Test) Counts() report.StatusCounts {
	return tr.ln.CountsSince(time.Time{})
}

// Behaviors returns the highest cumulative distinct-behavior count admitted.
func (tr *Test) Behaviors() int {
	return tr.ln.MaxBehaviors()
}

// Fingerprints returns the highest cumulative fingerprint count admitted.
func (tr *Test) Fingerprints() int {
	return tr.ln.MaxFingerprints()
}

// ElapsedSince returns cumulative worker execution time accumulated at or
// after the cutoff; a zero cutoff means since the start.
func (tr *Test) ElapsedSince(cutoff time.Time) time.Duration {
	return tr.ln.ElapsedSince(cutoff)
}

// InputsSinceNewBehavior returns the number of inputs executed at or after
// the most recent report that discovered a new behavior. It returns total
// inputs when no behavior was ever discovered.
func (tr *Test) InputsSinceNewBehavior() int {
	cutoff := tr.lastBehaviorCutoff()

	return tr.ln.CountsSince(cutoff).Sum()
}

// lastBehaviorCutoff finds the ordering key of the most recent admitted
// report whose cumulative behavior count exceeded every earlier one.
func (tr *Test) lastBehaviorCutoff() time.Time {
	linear := tr.ln.Linear()

	best := 0
	cutoff := time.Time{}

	for _, r := range linear {
		if r.Behaviors > best {
			best = r.Behaviors
			cutoff = r.TimestampMono
		}
	}

	return cutoff
}

// Linear returns a snapshot of the merged report sequence for plotting.
func (tr *Test) Linear() []*report.Report {
	return tr.ln.Linear()
}

// CountsPrefix returns the per-entry cumulative status counts from cutoff,
// aligned with the corresponding suffix of the linear sequence.
func (tr *Test) CountsPrefix(cutoff time.Time) []report.StatusCounts {
	return tr.ln.CountsPrefix(cutoff)
}

// Diagnostics returns malformed-feed findings attached to this test.
func (tr *Test) Diagnostics() []linearize.Diagnostic {
	return tr.ln.Diagnostics()
}

// Stats returns engine activity counters for this test.
func (tr *Test) Stats() linearize.Stats {
	return tr.ln.Stats()
}
