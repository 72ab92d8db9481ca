package report_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

func TestStatusCounts_GroupUnderAdd(t *testing.T) {
	t.Parallel()

	a := report.StatusCounts{Overrun: 1, Invalid: 2, Valid: 3, Interesting: 4}
	b := report.StatusCounts{Valid: 5, Interesting: 1}

	assert.Equal(t, a.Add(b), b.Add(a))
	assert.Equal(t, a, a.Add(b).Sub(b))
	assert.Equal(t, report.StatusCounts{}, a.Sub(a))
	assert.Equal(t, 10, a.Sum())
}

func TestStatusCounts_AddDoesNotMutate(t *testing.T) {
	t.Parallel()

	a := report.StatusCounts{Valid: 1}
	b := report.StatusCounts{Valid: 2}

	_ = a.Add(b)
	_ = a.Sub(b)

	assert.Equal(t, report.StatusCounts{Valid: 1}, a)
}

func TestStatusCounts_NonNegative(t *testing.T) {
	t.Parallel()

	later := report.StatusCounts{Valid: 3, Invalid: 1}
	earlier := report.StatusCounts{Valid: 1}

	assert.True(t, later.Sub(earlier).NonNegative())
	assert.False(t, earlier.Sub(later).NonNegative())
}

func TestPhase_Valid(t *testing.T) {
	t.Parallel()

	for _, p := range []report.Phase{
		report.PhaseGenerate, report.PhaseReplay, report.PhaseDistill,
		report.PhaseShrink, report.PhaseFailed,
	} {
		assert.True(t, p.Valid(), string(p))
	}

	assert.False(t, report.Phase("triage").Valid())
	assert.False(t, report.Phase("").Valid())
}

func TestReport_UnmarshalWireForm(t *testing.T) {
	t.Parallel()

	raw := `{
		"worker_id": "w1",
		"elapsed_time": 12.5,
		"timestamp": 1700000000.25,
		"status_counts": {"overrun": 1, "invalid": 2, "valid": 30, "interesting": 0},
		"behaviors": 7,
		"fingerprints": 9,
		"phase": "generate"
	}`

	var r report.Report

	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, "w1", r.WorkerID)
	assert.Equal(t, 12500*time.Millisecond, r.Elapsed)
	assert.Equal(t, time.Unix(1700000000, 250000000).UTC(), r.Timestamp)
	assert.Equal(t, report.StatusCounts{Overrun: 1, Invalid: 2, Valid: 30}, r.Counts)
	assert.Equal(t, 7, r.Behaviors)
	assert.Equal(t, 9, r.Fingerprints)
	assert.Equal(t, report.PhaseGenerate, r.Phase)

	// Derived fields are never part of the wire payload.
	assert.True(t, r.TimestampMono.IsZero())
	assert.Equal(t, report.StatusCounts{}, r.CountsDiff)
}

func TestReport_UnmarshalRejectsUnknownPhase(t *testing.T) {
	t.Parallel()

	raw := `{"worker_id": "w1", "elapsed_time": 1, "timestamp": 1, "phase": "explode"}`

	var r report.Report

	err := json.Unmarshal([]byte(raw), &r)
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrUnknownPhase)
}

func TestReport_UnmarshalRejectsNegativeElapsed(t *testing.T) {
	t.Parallel()

	raw := `{"worker_id": "w1", "elapsed_time": -3, "timestamp": 1, "phase": "generate"}`

	var r report.Report

	err := json.Unmarshal([]byte(raw), &r)
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrNegativeElapsed)
}

func TestReport_MarshalRoundTrip(t *testing.T) {
	t.Parallel()

	orig := report.Report{
		WorkerID:     "w2",
		Elapsed:      90 * time.Second,
		Timestamp:    time.Unix(1700000100, 0).UTC(),
		Counts:       report.StatusCounts{Valid: 42, Interesting: 1},
		Behaviors:    12,
		Fingerprints: 15,
		Phase:        report.PhaseShrink,
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded report.Report

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}
