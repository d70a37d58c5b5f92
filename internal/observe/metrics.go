// Package observe provides application-wide observability primitives for
// voxpipe: OpenTelemetry metrics and the provider setup that bridges them to
// Prometheus.
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

// meterName is the instrumentation scope name used for all voxpipe metrics.
const meterName = "github.com/voxpipe/voxpipe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// SendInterval tracks the observed interval between consecutive outbound
	// audio frames. Converges on the configured frame duration when pacing
	// is healthy.
	SendInterval metric.Float64Histogram

	// ConnectDuration tracks how long connection establishment takes.
	ConnectDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts outbound audio frames successfully written to the
	// transport.
	FramesSent metric.Int64Counter

	// FramesReceived counts inbound audio frames successfully decoded and
	// queued for playback.
	FramesReceived metric.Int64Counter

	// FramesDropped counts frames discarded anywhere in the pipeline. Use with
	// attributes:
	//   attribute.String("queue", ...), attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// CodecErrors counts encode/decode failures. Use with attribute:
	//   attribute.String("op", "encode"|"decode")
	CodecErrors metric.Int64Counter

	// Reconnects counts reconnection attempts after a connection failure.
	Reconnects metric.Int64Counter

	// ControlMessages counts inbound control messages. Use with attribute:
	//   attribute.String("type", ...)
	ControlMessages metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of frames currently buffered. Use with
	// attribute: attribute.String("queue", "capture"|"playback")
	QueueDepth metric.Int64UpDownCounter

	// ActiveConnections tracks the number of live transport sessions
	// (0 or 1 per engine).
	ActiveConnections metric.Int64UpDownCounter
}

// pacingBuckets defines histogram bucket boundaries (in seconds) centred on
// typical voice frame durations (20–120 ms).
var pacingBuckets = []float64{
	0.01, 0.02, 0.04, 0.055, 0.06, 0.065, 0.08, 0.12, 0.25, 0.5, 1,
}

// connectBuckets defines histogram bucket boundaries (in seconds) for
// connection establishment latency.
var connectBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SendInterval, err = m.Float64Histogram("voxpipe.pacer.send_interval",
		metric.WithDescription("Interval between consecutive outbound audio frames."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(pacingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("voxpipe.connect.duration",
		metric.WithDescription("Latency of transport connection establishment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(connectBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("voxpipe.frames.sent",
		metric.WithDescription("Total outbound audio frames written to the transport."),
	); err != nil {
		return nil, err
	}
	if met.FramesReceived, err = m.Int64Counter("voxpipe.frames.received",
		metric.WithDescription("Total inbound audio frames decoded and queued for playback."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxpipe.frames.dropped",
		metric.WithDescription("Total frames discarded, by queue and reason."),
	); err != nil {
		return nil, err
	}
	if met.CodecErrors, err = m.Int64Counter("voxpipe.codec.errors",
		metric.WithDescription("Total codec failures by operation."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voxpipe.reconnects",
		metric.WithDescription("Total reconnection attempts after a connection failure."),
	); err != nil {
		return nil, err
	}
	if met.ControlMessages, err = m.Int64Counter("voxpipe.control.messages",
		metric.WithDescription("Total inbound control messages by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("voxpipe.queue.depth",
		metric.WithDescription("Number of frames currently buffered, by queue."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("voxpipe.active_connections",
		metric.WithDescription("Number of live transport sessions."),
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

// RecordDrop is a convenience method that records one dropped frame with the
// standard attribute set.
func (m *Metrics) RecordDrop(ctx context.Context, queue, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("reason", reason),
		),
	)
}

// RecordCodecError is a convenience method that records one codec failure for
// the given operation ("encode" or "decode").
func (m *Metrics) RecordCodecError(ctx context.Context, op string) {
	m.CodecErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordControlMessage is a convenience method that records one inbound
// control message of the given type.
func (m *Metrics) RecordControlMessage(ctx context.Context, msgType string) {
	m.ControlMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", msgType)),
	)
}
