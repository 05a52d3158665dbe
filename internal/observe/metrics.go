// Package observe wires OpenTelemetry metrics and tracing, request-scoped
// slog loggers and the HTTP middleware that feeds all three.
//
// [InitProvider] installs the Prometheus bridge behind GET /metrics.
// Production code records through [DefaultMetrics]; tests build their own
// instruments with [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/iq360"

// Metrics groups the instruments IQ 360 records. Safe for concurrent use.
type Metrics struct {
	// Voice session pipeline.
	ActiveSessions  metric.Int64UpDownCounter
	FramesSent      metric.Int64Counter
	FramesDropped   metric.Int64Counter // by "reason"
	ChunksScheduled metric.Int64Counter
	DecodeErrors    metric.Int64Counter
	Interruptions   metric.Int64Counter
	SessionErrors   metric.Int64Counter // by "kind"
	TranscriptLines metric.Int64Counter // by "speaker"

	// Analysis service and the model backends behind it.
	AnalysisDuration  metric.Float64Histogram // by "kind", "status"
	AnalysisCacheHits metric.Int64Counter
	ProviderRequests  metric.Int64Counter // by "provider", "kind", "status"
	ProviderErrors    metric.Int64Counter // by "provider", "kind"

	// HTTP server.
	HTTPRequestDuration metric.Float64Histogram // by "method", "path"
}

// Vision and contract calls take seconds, so the buckets reach 40s.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

type counterSpec struct {
	dst  *metric.Int64Counter
	name string
	desc string
}

// NewMetrics registers every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}

	active, err := meter.Int64UpDownCounter("iq360.voice.active_sessions",
		metric.WithDescription("Open voice sessions."))
	if err != nil {
		return nil, fmt.Errorf("observe: active_sessions: %w", err)
	}
	m.ActiveSessions = active

	for _, c := range []counterSpec{
		{&m.FramesSent, "iq360.voice.frames_sent", "Microphone frames handed to the transport."},
		{&m.FramesDropped, "iq360.voice.frames_dropped", "Microphone frames the transport refused."},
		{&m.ChunksScheduled, "iq360.voice.chunks_scheduled", "Agent speech chunks placed on the playback timeline."},
		{&m.DecodeErrors, "iq360.voice.decode_errors", "Agent speech chunks discarded as malformed."},
		{&m.Interruptions, "iq360.voice.interruptions", "Barge-in events that flushed playback."},
		{&m.SessionErrors, "iq360.voice.session_errors", "Sessions that ended in the Errored state."},
		{&m.TranscriptLines, "iq360.voice.transcript_lines", "Committed transcript lines."},
		{&m.AnalysisCacheHits, "iq360.analysis.cache_hits", "Property reports answered from the image-hash cache."},
		{&m.ProviderRequests, "iq360.provider.requests", "Model backend calls."},
		{&m.ProviderErrors, "iq360.provider.errors", "Failed model backend calls."},
	} {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("observe: %s: %w", c.name, err)
		}
	}

	if m.AnalysisDuration, err = meter.Float64Histogram("iq360.analysis.duration",
		metric.WithDescription("Analysis call latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("observe: analysis.duration: %w", err)
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("iq360.http.request.duration",
		metric.WithDescription("HTTP request latency."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("observe: http.request.duration: %w", err)
	}
	return m, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics lazily builds a Metrics on the global meter provider. It
// panics if registration fails, which only a broken provider causes.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func labels(kv ...string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(attrs...)
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, labels("provider", provider, "kind", kind, "status", status))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, labels("provider", provider, "kind", kind))
}

func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, labels("reason", reason))
}

func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1, labels("kind", kind))
}

func (m *Metrics) RecordTranscriptLine(ctx context.Context, speaker string) {
	m.TranscriptLines.Add(ctx, 1, labels("speaker", speaker))
}

// RecordAnalysis samples one analysis call's latency.
func (m *Metrics) RecordAnalysis(ctx context.Context, kind, status string, seconds float64) {
	m.AnalysisDuration.Record(ctx, seconds, labels("kind", kind, "status", status))
}
