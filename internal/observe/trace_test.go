package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps the global tracer provider for one backed by an
// in-memory exporter.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default slog logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_RecordsSpanWithTraceID(t *testing.T) {
	exp := installTracer(t)

	ctx, span := StartSpan(context.Background(), "analysis.property")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation ID %q, want 32 hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "analysis.property" {
		t.Fatalf("spans = %v", spans)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("span trace ID %q != correlation ID %q", got, cid)
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)

	t.Run("with span", func(t *testing.T) {
		buf := captureLogs(t)
		ctx, span := StartSpan(context.Background(), "op")
		defer span.End()

		Logger(ctx).Info("hello")
		out := buf.String()
		if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) || !strings.Contains(out, "span_id=") {
			t.Errorf("log output missing trace fields: %s", out)
		}
	})

	t.Run("without span", func(t *testing.T) {
		buf := captureLogs(t)
		Logger(context.Background()).Info("hello")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("unexpected trace_id: %s", buf.String())
		}
	})
}

func TestFailSpan(t *testing.T) {
	exp := installTracer(t)

	_, ok := StartSpan(context.Background(), "ok")
	FailSpan(ok, nil)
	ok.End()
	_, bad := StartSpan(context.Background(), "bad")
	FailSpan(bad, errors.New("vision: 503"))
	bad.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset || len(spans[0].Events) != 0 {
		t.Errorf("nil error changed span: %+v", spans[0].Status)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "vision: 503" {
		t.Errorf("status = %+v", spans[1].Status)
	}
}
