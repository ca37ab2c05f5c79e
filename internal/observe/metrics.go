// Package observe provides application-wide observability primitives for
// Vanya: OpenTelemetry metrics, distributed tracing, trace-aware logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vanya metrics.
const meterName = "github.com/bawa-mj/vanya"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// PipelineDuration tracks one backend round trip including parsing.
	PipelineDuration metric.Float64Histogram

	// CaptureDuration tracks how long a capture session stayed open.
	CaptureDuration metric.Float64Histogram

	// PlaybackDuration tracks how long an utterance took to play.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ModeTransitions counts interaction mode changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	ModeTransitions metric.Int64Counter

	// Turns counts transcript appends. Use with attribute:
	//   attribute.String("speaker", ...)
	Turns metric.Int64Counter

	// Toasts counts transient error messages shown. Use with attribute:
	//   attribute.String("kind", ...)
	Toasts metric.Int64Counter

	// --- Gauges ---

	// EventSubscribers tracks the number of live state-stream subscribers.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a spoken exchange: short network calls up to long utterances.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineDuration, err = m.Float64Histogram("vanya.pipeline.duration",
		metric.WithDescription("Latency of one backend request including reply parsing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("vanya.capture.duration",
		metric.WithDescription("Duration of a speech capture session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("vanya.playback.duration",
		metric.WithDescription("Duration of reply playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("vanya.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("vanya.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ModeTransitions, err = m.Int64Counter("vanya.mode.transitions",
		metric.WithDescription("Total interaction mode transitions by source and target mode."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("vanya.transcript.turns",
		metric.WithDescription("Total transcript turns by speaker."),
	); err != nil {
		return nil, err
	}
	if met.Toasts, err = m.Int64Counter("vanya.toasts",
		metric.WithDescription("Total transient error messages by kind."),
	); err != nil {
		return nil, err
	}

	if met.EventSubscribers, err = m.Int64UpDownCounter("vanya.event_subscribers",
		metric.WithDescription("Number of connected state-stream subscribers."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("vanya.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTransition records one mode change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.ModeTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTurn records one transcript append.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}

// RecordToast records one transient error message.
func (m *Metrics) RecordToast(ctx context.Context, kind string) {
	m.Toasts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ObserveSince records the seconds elapsed since start on h.
func ObserveSince(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}
