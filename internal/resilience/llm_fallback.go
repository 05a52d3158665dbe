package resilience

import (
	"context"

	"github.com/MrWong99/iq360/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across backends.
// Requests carrying images only go to members whose capabilities report
// vision support.
type LLMFallback struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an empty fallback chain. Add at least one backend
// before use.
func NewLLMFallback(cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewGroup[llm.Provider](cfg)}
}

// Add registers a backend after the existing ones.
func (f *LLMFallback) Add(name string, p llm.Provider) *LLMFallback {
	f.group.Add(name, p)
	return f
}

// States exposes per-backend breaker state for health reporting.
func (f *LLMFallback) States() map[string]State { return f.group.States() }

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var skip func(llm.Provider) bool
	if req.HasImages() {
		skip = func(p llm.Provider) bool { return !p.Capabilities().SupportsVision }
	}
	return Call(ctx, f.group, skip, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities merges member capabilities: the smallest context limits and
// vision if any member can see.
func (f *LLMFallback) Capabilities() llm.Capabilities {
	var out llm.Capabilities
	for i, m := range f.group.members {
		c := m.value.Capabilities()
		if i == 0 || c.ContextWindow < out.ContextWindow {
			out.ContextWindow = c.ContextWindow
		}
		if i == 0 || c.MaxOutputTokens < out.MaxOutputTokens {
			out.MaxOutputTokens = c.MaxOutputTokens
		}
		out.SupportsVision = out.SupportsVision || c.SupportsVision
	}
	return out
}
