// Package report defines the per-worker progress snapshot emitted by fuzzing
// workers and the status-count tally it carries.
package report

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase identifies what a worker was doing when it emitted a report.
type Phase string

// Worker phases, in wire form.
const (
	PhaseGenerate Phase = "generate"
	PhaseReplay   Phase = "replay"
	PhaseDistill  Phase = "distill"
	PhaseShrink   Phase = "shrink"
	PhaseFailed   Phase = "failed"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseGenerate, PhaseReplay, PhaseDistill, PhaseShrink, PhaseFailed:
		return true
	default:
		return false
	}
}

// StatusCounts tallies input outcomes for one reporting window. It is a value
// type: Add and Sub return new values and never mutate their receivers, so the
// type forms a commutative group under Add.
type StatusCounts struct {
	Overrun     int `json:"overrun"`
	Invalid     int `json:"invalid"`
	Valid       int `json:"valid"`
	Interesting int `json:"interesting"`
}

// Add returns the category-wise sum of sc and other.
func (sc StatusCounts) Add(other StatusCounts) StatusCounts {
	return StatusCounts{
		Overrun:     sc.Overrun + other.Overrun,
		Invalid:     sc.Invalid + other.Invalid,
		Valid:       sc.Valid + other.Valid,
		Interesting: sc.Interesting + other.Interesting,
	}
}

// Sub returns the category-wise difference sc - other. The result is only
// meaningful as a diff between a later and an earlier cumulative snapshot from
// the same worker; callers assert NonNegative on such diffs.
func (sc StatusCounts) Sub(other StatusCounts) StatusCounts {
	return StatusCounts{
		Overrun:     sc.Overrun - other.Overrun,
		Invalid:     sc.Invalid - other.Invalid,
		Valid:       sc.Valid - other.Valid,
		Interesting: sc.Interesting - other.Interesting,
	}
}

// Sum returns the total count across all categories.
func (sc StatusCounts) Sum() int {
	return sc.Overrun + sc.Invalid + sc.Valid + sc.Interesting
}

// NonNegative reports whether every category count is >= 0.
func (sc StatusCounts) NonNegative() bool {
	return sc.Overrun >= 0 && sc.Invalid >= 0 && sc.Valid >= 0 && sc.Interesting >= 0
}

// Report is one worker's cumulative progress snapshot at a point in its own
// execution. The raw fields are immutable once constructed; the derived diff
// fields are written exactly once by the linearizer at admission time, and
// exactly once more if a later out-of-order insert makes a repair necessary.
type Report struct {
	WorkerID     string
	Elapsed      time.Duration
	Timestamp    time.Time
	Counts       StatusCounts
	Behaviors    int
	Fingerprints int
	Phase        Phase

	// Derived by the linearizer; not part of the wire payload.
	CountsDiff    StatusCounts
	ElapsedDiff   time.Duration
	TimestampMono time.Time
}

// wireReport is the JSON form of a report. Workers are not Go processes, so
// elapsed time and the wall-clock timestamp travel as float seconds.
type wireReport struct {
	WorkerID     string       `json:"worker_id"`
	ElapsedTime  float64      `json:"elapsed_time"`
	Timestamp    float64      `json:"timestamp"`
	StatusCounts StatusCounts `json:"status_counts"`
	Behaviors    int          `json:"behaviors"`
	Fingerprints int          `json:"fingerprints"`
	Phase        Phase        `json:"phase"`
}

// secondsToDuration converts float seconds to a Duration without drifting on
// sub-microsecond fractions.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// secondsToTime converts float unix seconds to a Time.
func secondsToTime(s float64) time.Time {
	sec := int64(s)
	nsec := int64((s - float64(sec)) * float64(time.Second))

	return time.Unix(sec, nsec).UTC()
}

// timeToSeconds converts a Time to float unix seconds.
func timeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// UnmarshalJSON decodes the wire form, converting float seconds to Go types.
func (r *Report) UnmarshalJSON(data []byte) error {
	var w wireReport

	err := json.Unmarshal(data, &w)
	if err != nil {
		return fmt.Errorf("unmarshal report: %w", err)
	}

	if !w.Phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, w.Phase)
	}

	if w.ElapsedTime < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeElapsed, w.ElapsedTime)
	}

	*r = Report{
		WorkerID:     w.WorkerID,
		Elapsed:      secondsToDuration(w.ElapsedTime),
		Timestamp:    secondsToTime(w.Timestamp),
		Counts:       w.StatusCounts,
		Behaviors:    w.Behaviors,
		Fingerprints: w.Fingerprints,
		Phase:        w.Phase,
	}

	return nil
}

// MarshalJSON encodes the wire form. Derived fields are not serialized; they
// are reconstructed by whichever linearizer ingests the report.
func (r Report) MarshalJSON() ([]byte, error) {
	w := wireReport{
		WorkerID:     r.WorkerID,
		ElapsedTime:  r.Elapsed.Seconds(),
		Timestamp:    timeToSeconds(r.Timestamp),
		StatusCounts: r.Counts,
		Behaviors:    r.Behaviors,
		Fingerprints: r.Fingerprints,
		Phase:        r.Phase,
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	return data, nil
}
