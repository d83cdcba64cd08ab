// Package observe provides application-wide observability primitives for
// Medivox: OpenTelemetry metrics, tracing, and trace-aware logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Medivox metrics.
const meterName = "github.com/MrWong99/medivox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// CycleDuration tracks end-to-end capture-to-match latency.
	CycleDuration metric.Float64Histogram

	// --- Counters ---

	// Cycles counts completed capture cycles. Use with attribute:
	//   attribute.String("outcome", "done"|"transcription_unavailable"|"timeout")
	Cycles metric.Int64Counter

	// StageSkips counts optional stages that were skipped. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("reason", ...)
	StageSkips metric.Int64Counter

	// Selections counts persisted selection records.
	Selections metric.Int64Counter

	// CatalogReloads counts catalog reload attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	CatalogReloads metric.Int64Counter

	// --- Match quality ---

	// MatchScore records the top candidate score of each match call.
	MatchScore metric.Float64Histogram

	// MatchAccepts counts match results by acceptance. Use with attribute:
	//   attribute.String("auto_accepted", "true"|"false")
	MatchAccepts metric.Int64Counter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// capture-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets defines bucket boundaries for the 0–100 match score scale.
var scoreBuckets = []float64{10, 25, 50, 60, 70, 78, 85, 92, 97, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("medivox.pipeline.stage.duration",
		metric.WithDescription("Latency of a single capture-pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("medivox.pipeline.cycle.duration",
		metric.WithDescription("End-to-end capture-to-match latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Cycles, err = m.Int64Counter("medivox.pipeline.cycles",
		metric.WithDescription("Total capture cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StageSkips, err = m.Int64Counter("medivox.pipeline.stage.skips",
		metric.WithDescription("Optional pipeline stages skipped, by stage and reason."),
	); err != nil {
		return nil, err
	}
	if met.Selections, err = m.Int64Counter("medivox.selections",
		metric.WithDescription("Selection records appended to the store."),
	); err != nil {
		return nil, err
	}
	if met.CatalogReloads, err = m.Int64Counter("medivox.catalog.reloads",
		metric.WithDescription("Catalog reload attempts by status."),
	); err != nil {
		return nil, err
	}

	if met.MatchScore, err = m.Float64Histogram("medivox.match.top_score",
		metric.WithDescription("Top candidate score per match call."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchAccepts, err = m.Int64Counter("medivox.match.results",
		metric.WithDescription("Match results by auto-acceptance."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("medivox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStageSkip records a skipped optional stage with the standard
// attribute set.
func (m *Metrics) RecordStageSkip(ctx context.Context, stage, reason string) {
	m.StageSkips.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("reason", reason),
		),
	)
}

// RecordCycle records a completed capture cycle with its outcome and
// duration in seconds.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string, seconds float64) {
	m.Cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.CycleDuration.Record(ctx, seconds)
}

// RecordMatch records the top score and acceptance of one match call.
func (m *Metrics) RecordMatch(ctx context.Context, topScore float64, autoAccepted bool) {
	m.MatchScore.Record(ctx, topScore)
	accepted := "false"
	if autoAccepted {
		accepted = "true"
	}
	m.MatchAccepts.Add(ctx, 1, metric.WithAttributes(attribute.String("auto_accepted", accepted)))
}
