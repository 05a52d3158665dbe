// Package mock is a scriptable [llm.Provider] for tests.
//
//	vision := &mock.Provider{
//		CompleteResponse:  &llm.CompletionResponse{Content: `{"healthScore": 0.72}`},
//		ModelCapabilities: llm.Capabilities{SupportsVision: true},
//	}
//	// ... exercise code, then inspect vision.Calls()[0].Req
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/iq360/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers Complete from its fields. Set the fields before use;
// the recorded calls may be read concurrently through [Provider.Calls].
type Provider struct {
	// CompleteFunc takes precedence over CompleteResponse and CompleteErr.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is copied per call. Nil yields an empty response.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	ModelCapabilities llm.Capabilities

	mu    sync.Mutex
	calls []CompleteCall
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	p.mu.Unlock()

	switch {
	case p.CompleteFunc != nil:
		return p.CompleteFunc(ctx, req)
	case p.CompleteErr != nil:
		return nil, p.CompleteErr
	case p.CompleteResponse == nil:
		return &llm.CompletionResponse{}, nil
	}
	resp := *p.CompleteResponse
	return &resp, nil
}

func (p *Provider) Capabilities() llm.Capabilities { return p.ModelCapabilities }

// Calls snapshots the recorded invocations in order.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
