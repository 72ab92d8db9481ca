package feed_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/feed"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

func sampleEvents() []feed.Event {
	return []feed.Event{
		feed.TestsCollected{Tests: []feed.TestEntry{{TestID: "a"}}},
		feed.ReportsBatch{
			TestID:   "a",
			WorkerID: workerID,
			Reports: []report.Report{{
				WorkerID:  workerID,
				Elapsed:   time.Second,
				Timestamp: time.Unix(1700000000, 0).UTC(),
				Counts:    report.StatusCounts{Valid: 7},
				Phase:     report.PhaseGenerate,
			}},
		},
		feed.LoadFinished{TestID: "a"},
	}
}

func TestRecorderReplayer_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	rec := feed.NewRecorder(&buf)
	for _, ev := range sampleEvents() {
		require.NoError(t, rec.Record(ev))
	}

	var replayed []feed.Event

	rep := feed.NewReplayer(&buf)
	require.NoError(t, rep.Replay(func(ev feed.Event) {
		replayed = append(replayed, ev)
	}))

	assert.Equal(t, sampleEvents(), replayed)
}

func TestReplayer_EmptyLog(t *testing.T) {
	t.Parallel()

	rep := feed.NewReplayer(strings.NewReader(""))

	_, err := rep.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplayer_TruncatedFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	rec := feed.NewRecorder(&buf)
	require.NoError(t, rec.Record(feed.LoadFinished{TestID: "a"}))

	truncated := buf.Bytes()[:buf.Len()-3]

	rep := feed.NewReplayer(bytes.NewReader(truncated))

	_, err := rep.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrCorruptEventLog)
}

func TestRecorder_ManyFramesCompress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	rec := feed.NewRecorder(&buf)

	const frames = 100

	for i := range frames {
		require.NoError(t, rec.Record(feed.ReportsBatch{
			TestID:   "repetitive-batch",
			WorkerID: workerID,
			Reports: []report.Report{{
				WorkerID:  workerID,
				Elapsed:   time.Duration(i) * time.Second,
				Timestamp: time.Unix(1700000000+int64(i), 0).UTC(),
				Counts:    report.StatusCounts{Valid: i},
				Phase:     report.PhaseGenerate,
			}},
		}))
	}

	count := 0
	rep := feed.NewReplayer(&buf)
	require.NoError(t, rep.Replay(func(feed.Event) { count++ }))
	assert.Equal(t, frames, count)
}
