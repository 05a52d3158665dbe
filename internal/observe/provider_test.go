package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test", Registerer: reg})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	m.RecordAnalysis(context.Background(), "comps", "ok", 0.25)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "iq360_analysis_duration") {
			found = true
		}
	}
	if !found {
		t.Error("analysis duration not exported to the registry")
	}

	_, span := StartSpan(context.Background(), "probe")
	if !span.SpanContext().IsSampled() {
		t.Error("root span not sampled with the default ratio")
	}
	span.End()
}

func TestInitProvider_RejectsBadRatio(t *testing.T) {
	if _, err := InitProvider(context.Background(), ProviderConfig{SampleRatio: 1.5}); err == nil {
		t.Fatal("expected error for ratio 1.5")
	}
}
