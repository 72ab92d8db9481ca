package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricReportsIngested  = "fuzzdash.engine.reports.ingested.total"
	metricReportsAdmitted  = "fuzzdash.engine.reports.admitted.total"
	metricSplicesTotal     = "fuzzdash.engine.splices.total"
	metricRepairsTotal     = "fuzzdash.engine.repairs.total"
	metricTruncationsTotal = "fuzzdash.engine.cache.truncations.total"
	metricViolationsTotal  = "fuzzdash.engine.violations.total"
	metricFeedEventsTotal  = "fuzzdash.feed.events.total"
	metricRenderDuration   = "fuzzdash.render.duration.seconds"

	attrEventType = "event_type"
)

// renderBucketBoundaries covers 1ms to 30s; a dashboard render is normally
// sub-second but grows with the number of admitted reports.
var renderBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// EngineStats holds activity counter deltas for one recording interval,
// decoupled from engine types.
type EngineStats struct {
	Ingested    int64
	Admitted    int64
	Splices     int64
	Repairs     int64
	Truncations int64
	Violations  int64
}

// EngineMetrics holds OTel instruments for linearization engine metrics.
type EngineMetrics struct {
	reportsIngested metric.Int64Counter
	reportsAdmitted metric.Int64Counter
	splices         metric.Int64Counter
	repairs         metric.Int64Counter
	truncations     metric.Int64Counter
	violations      metric.Int64Counter
	feedEvents      metric.Int64Counter
	renderDuration  metric.Float64Histogram
}

// NewEngineMetrics creates engine metric instruments from the given meter.
func NewEngineMetrics(mt metric.Meter) (*EngineMetrics, error) {
	ingested, err := mt.Int64Counter(metricReportsIngested,
		metric.WithDescription("Total reports offered to the linearizer"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricReportsIngested, err)
	}

	admitted, err := mt.Int64Counter(metricReportsAdmitted,
		metric.WithDescription("Total reports admitted into the linear sequence"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricReportsAdmitted, err)
	}

	splices, err := mt.Int64Counter(metricSplicesTotal,
		metric.WithDescription("Total retroactive insertions into the linear sequence"),
		metric.WithUnit("{splice}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSplicesTotal, err)
	}

	repairs, err := mt.Int64Counter(metricRepairsTotal,
		metric.WithDescription("Total successor diff recomputations after a splice"),
		metric.WithUnit("{repair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRepairsTotal, err)
	}

	truncations, err := mt.Int64Counter(metricTruncationsTotal,
		metric.WithDescription("Total aggregate cache entry truncations"),
		metric.WithUnit("{truncation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTruncationsTotal, err)
	}

	violations, err := mt.Int64Counter(metricViolationsTotal,
		metric.WithDescription("Total malformed-feed diagnostics raised"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricViolationsTotal, err)
	}

	events, err := mt.Int64Counter(metricFeedEventsTotal,
		metric.WithDescription("Total feed events applied, by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFeedEventsTotal, err)
	}

	renderDur, err := mt.Float64Histogram(metricRenderDuration,
		metric.WithDescription("Dashboard render duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(renderBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRenderDuration, err)
	}

	return &EngineMetrics{
		reportsIngested: ingested,
		reportsAdmitted: admitted,
		splices:         splices,
		repairs:         repairs,
		truncations:     truncations,
		violations:      violations,
		feedEvents:      events,
		renderDuration:  renderDur,
	}, nil
}

// RecordEngine records engine activity deltas for one interval.
// Safe to call on a nil receiver (no-op).
func (em *EngineMetrics) RecordEngine(ctx context.Context, stats EngineStats) {
	if em == nil {
		return
	}

	em.reportsIngested.Add(ctx, stats.Ingested)
	em.reportsAdmitted.Add(ctx, stats.Admitted)
	em.splices.Add(ctx, stats.Splices)
	em.repairs.Add(ctx, stats.Repairs)
	em.truncations.Add(ctx, stats.Truncations)
	em.violations.Add(ctx, stats.Violations)
}

// RecordEvent records one applied feed event of the given type.
// Safe to call on a nil receiver (no-op).
func (em *EngineMetrics) RecordEvent(ctx context.Context, eventType string) {
	if em == nil {
		return
	}

	em.feedEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrEventType, eventType),
	))
}

// RecordRender records one completed dashboard render.
// Safe to call on a nil receiver (no-op).
func (em *EngineMetrics) RecordRender(ctx context.Context, duration time.Duration) {
	if em == nil {
		return
	}

	em.renderDuration.Record(ctx, duration.Seconds())
}
