// Package feed defines the typed events delivered by the fuzzing transport
// and the websocket client, recorder, and replayer that carry them. Each
// event is fully formed and independently parseable; ordering across tests
// does not matter, and ordering across workers within a test only needs to be
// per-worker-locally non-decreasing by elapsed time.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

// EventType discriminates the wire envelope.
type EventType string

// Wire event types.
const (
	EventTestsCollected EventType = "tests_collected"
	EventReportsBatch   EventType = "reports_batch"
	EventObservations   EventType = "observations"
	EventLoadFinished   EventType = "load_finished"
)

// Envelope is the outer wire form: a type tag and an opaque payload.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is one decoded transport event.
type Event interface {
	// Kind returns the wire event type.
	Kind() EventType
}

// TestEntry names one newly collected test and its known failures.
type TestEntry struct {
	TestID   string   `json:"test_id"`
	Failures []string `json:"failures,omitempty"`
}

// TestsCollected announces a batch of newly collected test identifiers with
// their known failures.
type TestsCollected struct {
	Tests []TestEntry `json:"tests"`
}

// Kind implements Event.
func (TestsCollected) Kind() EventType { return EventTestsCollected }

// ReportsBatch carries a batch of reports for one (test, worker) pair.
type ReportsBatch struct {
	TestID   string          `json:"test_id"`
	WorkerID string          `json:"worker_id"`
	Reports  []report.Report `json:"reports"`
}

// Kind implements Event.
func (ReportsBatch) Kind() EventType { return EventReportsBatch }

// Observation is one rolling or corpus example observed for a test.
type Observation struct {
	Representation string `json:"representation"`
	Status         string `json:"status"`
}

// Observations carries a batch of rolling or corpus example observations for
// one test.
type Observations struct {
	TestID  string        `json:"test_id"`
	Rolling []Observation `json:"rolling,omitempty"`
	Corpus  []Observation `json:"corpus,omitempty"`
}

// Kind implements Event.
func (Observations) Kind() EventType { return EventObservations }

// LoadFinished marks the end of the initial bulk load for one test.
type LoadFinished struct {
	TestID string `json:"test_id"`
}

// Kind implements Event.
func (LoadFinished) Kind() EventType { return EventLoadFinished }

// Decode validates and decodes one wire envelope into a typed event.
func Decode(data []byte) (Event, error) {
	err := ValidateEnvelope(data)
	if err != nil {
		return nil, err
	}

	var env Envelope

	err = json.Unmarshal(data, &env)
	if err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	return decodePayload(env)
}

func decodePayload(env Envelope) (Event, error) {
	switch env.Type {
	case EventTestsCollected:
		var ev TestsCollected

		return ev, unmarshalPayload(env, &ev)
	case EventReportsBatch:
		var ev ReportsBatch

		return ev, unmarshalPayload(env, &ev)
	case EventObservations:
		var ev Observations

		return ev, unmarshalPayload(env, &ev)
	case EventLoadFinished:
		var ev LoadFinished

		return ev, unmarshalPayload(env, &ev)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}

func unmarshalPayload(env Envelope, target any) error {
	err := json.Unmarshal(env.Payload, target)
	if err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}

	return nil
}

// Encode wraps a typed event into its wire envelope.
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Kind(), err)
	}

	data, err := json.Marshal(Envelope{Type: ev.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return data, nil
}
