package app

import (
	"context"

	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/pkg/provider/llm"
)

// meteredLLM counts requests and errors per backend and analysis slot.
type meteredLLM struct {
	name    string
	slot    string
	inner   llm.Provider
	metrics *observe.Metrics
}

func (m *meteredLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := m.inner.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		m.metrics.RecordProviderError(ctx, m.name, m.slot)
	}
	m.metrics.RecordProviderRequest(ctx, m.name, m.slot, status)
	return resp, err
}

func (m *meteredLLM) Capabilities() llm.Capabilities { return m.inner.Capabilities() }

func (a *App) metered(slot string, n NamedLLM) llm.Provider {
	return &meteredLLM{name: n.Name, slot: slot, inner: n.Provider, metrics: a.metrics}
}
