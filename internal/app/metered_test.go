package app

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/pkg/provider/llm"
	llmmock "github.com/MrWong99/iq360/pkg/provider/llm/mock"
)

func TestMeteredLLM(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatal(err)
	}
	a := &App{metrics: m}
	ctx := context.Background()

	ok := a.metered("vision", NamedLLM{Name: "gemini", Provider: &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "{}"},
		ModelCapabilities: llm.Capabilities{SupportsVision: true},
	}})
	bad := a.metered("vision", NamedLLM{Name: "openai", Provider: &llmmock.Provider{CompleteErr: errors.New("down")}})

	if _, err := ok.Complete(ctx, llm.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := bad.Complete(ctx, llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if !ok.Capabilities().SupportsVision {
		t.Error("capabilities not forwarded")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	requests := map[string]int64{}
	var errs int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, isSum := md.Data.(metricdata.Sum[int64])
			if !isSum {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch md.Name {
				case "iq360.provider.requests":
					p, _ := dp.Attributes.Value(attribute.Key("provider"))
					requests[p.AsString()] += dp.Value
				case "iq360.provider.errors":
					errs += dp.Value
				}
			}
		}
	}
	if requests["gemini"] != 1 || requests["openai"] != 1 {
		t.Errorf("requests = %v", requests)
	}
	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
}
