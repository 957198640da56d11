// Package observe provides application-wide observability primitives for
// larder: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all larder metrics.
const meterName = "github.com/MrWong99/larder"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ─── Pipeline ───

	// PipelineTransitions counts state machine transitions. Attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	PipelineTransitions metric.Int64Counter

	// Commands counts recognised voice commands by command name.
	Commands metric.Int64Counter

	// Recordings counts recording sessions started, by intent.
	Recordings metric.Int64Counter

	// RecordingRejected counts recording requests that could not start, by
	// reason ("outstanding", "buffer").
	RecordingRejected metric.Int64Counter

	// ProcessingDuration tracks the time from hand-off to idle.
	ProcessingDuration metric.Float64Histogram

	// CollaboratorErrors counts errors swallowed by the processing stage, by
	// stage ("transcribe", "apply", "refresh", "panic").
	CollaboratorErrors metric.Int64Counter

	// ─── Providers ───

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ─── Inventory & background workers ───

	// InventoryItems reports the number of distinct items in the store.
	InventoryItems metric.Int64Gauge

	// SyncPending reports the number of queued cloud sync events.
	SyncPending metric.Int64Gauge

	// Notifications counts spoken expiry reminders.
	Notifications metric.Int64Counter

	// ─── HTTP middleware ───

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// route pattern and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider calls and utterance processing.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Pipeline.
	if met.PipelineTransitions, err = m.Int64Counter("larder.pipeline.transitions",
		metric.WithDescription("Pipeline state transitions by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("larder.pipeline.commands",
		metric.WithDescription("Recognised voice commands by command."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("larder.recordings",
		metric.WithDescription("Recording sessions started by intent."),
	); err != nil {
		return nil, err
	}
	if met.RecordingRejected, err = m.Int64Counter("larder.recording.rejected",
		metric.WithDescription("Recording requests rejected by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProcessingDuration, err = m.Float64Histogram("larder.processing.duration",
		metric.WithDescription("Time from recording hand-off until the pipeline is idle again."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorErrors, err = m.Int64Counter("larder.processing.errors",
		metric.WithDescription("Errors isolated by the processing stage by stage."),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.STTDuration, err = m.Float64Histogram("larder.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("larder.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("larder.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("larder.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("larder.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Inventory & workers.
	if met.InventoryItems, err = m.Int64Gauge("larder.inventory.items",
		metric.WithDescription("Number of distinct items in the inventory."),
	); err != nil {
		return nil, err
	}
	if met.SyncPending, err = m.Int64Gauge("larder.sync.pending",
		metric.WithDescription("Number of cloud sync events waiting to be delivered."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("larder.notify.sent",
		metric.WithDescription("Spoken expiry reminders."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("larder.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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

// RecordTransition records one pipeline state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.PipelineTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordCommand records a recognised command.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordRecording records the start of a recording session.
func (m *Metrics) RecordRecording(ctx context.Context, intent string) {
	m.Recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordRecordingRejected records a recording request that could not start.
func (m *Metrics) RecordRecordingRejected(ctx context.Context, reason string) {
	m.RecordingRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCollaboratorError records an error isolated by the processing stage.
func (m *Metrics) RecordCollaboratorError(ctx context.Context, stage string) {
	m.CollaboratorErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
