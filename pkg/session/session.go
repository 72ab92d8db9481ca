// Package session owns the per-test aggregate state for one viewing session
// and applies transport events to it. All mutation happens synchronously
// inside the handler for one event, so the session needs no locking as long
// as a single goroutine feeds it.
package session

import (
	"log/slog"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/feed"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/linearize"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/testrun"
)

// Session is the aggregate of every test observed on the current feed.
type Session struct {
	tests    map[string]*testrun.Test
	testOpts []testrun.Option
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTestOptions sets options applied to every Test the session creates.
func WithTestOptions(opts ...testrun.Option) Option {
	return func(s *Session) { s.testOpts = opts }
}

// New creates an empty session.
func New(opts ...Option) *Session {
	s := &Session{
		tests:  make(map[string]*testrun.Test),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Clear drops all per-test state. Called before (re)subscribing to a feed so
// that a full replay of the bulk snapshot cannot double-count.
func (s *Session) Clear() {
	s.tests = make(map[string]*testrun.Test)
}

// Apply routes one transport event into the owning test. Unknown test
// identifiers create their aggregate on first observation.
func (s *Session) Apply(ev feed.Event) {
	switch e := ev.(type) {
	case feed.TestsCollected:
		s.applyCollected(e)
	case feed.ReportsBatch:
		s.applyReports(e)
	case feed.Observations:
		s.applyObservations(e)
	case feed.LoadFinished:
		s.test(e.TestID).FinishLoad()
	default:
		s.logger.Warn("ignoring unhandled event", slog.String("type", string(ev.Kind())))
	}
}

func (s *Session) applyCollected(e feed.TestsCollected) {
	now := time.Now().UTC()

	for _, entry := range e.Tests {
		tr := s.test(entry.TestID)
		for _, label := range entry.Failures {
			tr.RecordFailure(testrun.Failure{Label: label, ObservedAt: now})
		}
	}
}

func (s *Session) applyReports(e feed.ReportsBatch) {
	tr := s.test(e.TestID)

	for i := range e.Reports {
		// Copy: the linearizer takes ownership and writes derived fields.
		r := e.Reports[i]
		if r.WorkerID == "" {
			r.WorkerID = e.WorkerID
		}

		admitted := tr.Ingest(&r)
		if !admitted && r.Phase != report.PhaseReplay {
			s.logger.Debug("report not admitted",
				slog.String("test_id", e.TestID),
				slog.String("worker_id", r.WorkerID),
				slog.Duration("elapsed", r.Elapsed))
		}
	}
}

func (s *Session) applyObservations(e feed.Observations) {
	s.test(e.TestID).RecordObservations(len(e.Rolling), len(e.Corpus))
}

// test returns the aggregate for id, creating it on first observation.
func (s *Session) test(id string) *testrun.Test {
	tr, ok := s.tests[id]
	if !ok {
		tr = testrun.New(id, s.testOpts...)
		s.tests[id] = tr
	}

	return tr
}

// Test returns the aggregate for id, or nil when never observed.
func (s *Session) Test(id string) *testrun.Test {
	return s.tests[id]
}

// Tests returns all aggregates sorted by test ID. Presentation values derived
// from ordering (colors, legends) must come from this stable order, never
// from arrival order.
func (s *Session) Tests() []*testrun.Test {
	ids := make([]string, 0, len(s.tests))
	for id := range s.tests {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	out := make([]*testrun.Test, len(ids))
	for i, id := range ids {
		out[i] = s.tests[id]
	}

	return out
}

// Len returns the number of observed tests.
func (s *Session) Len() int {
	return len(s.tests)
}

// Stats aggregates engine activity counters across all tests.
func (s *Session) Stats() linearize.Stats {
	var total linearize.Stats

	for _, tr := range s.tests {
		st := tr.Stats()
		total.Ingested += st.Ingested
		total.Admitted += st.Admitted
		total.Splices += st.Splices
		total.Repairs += st.Repairs
		total.Truncations += st.Truncations
		total.Violations += st.Violations
	}

	return total
}
