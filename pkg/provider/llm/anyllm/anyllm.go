// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider]
// for the text-only analysis calls (market summaries, contract drafts),
// where the backend is a config switch rather than a code change.
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/iq360/pkg/provider/llm"
)

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

func adapt[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		p, err := fn(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var backends = map[string]backendFunc{
	"anthropic": adapt(anthropic.New),
	"deepseek":  adapt(deepseek.New),
	"gemini":    adapt(gemini.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"mistral":   adapt(mistral.New),
	"ollama":    adapt(ollama.New),
	"openai":    adapt(anyllmoai.New),
}

// Backends lists the accepted backend names, sorted.
func Backends() []string { return slices.Sorted(maps.Keys(backends)) }

// Provider sends text completions through one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New builds a Provider for backend (see [Backends]). Without
// [anyllmlib.WithAPIKey] the backend reads its usual environment variable.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(backend)
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	mk, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (have %s)", backend, strings.Join(Backends(), ", "))
	}
	b, err := mk(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

// Complete rejects image requests with [llm.ErrVisionUnsupported].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.HasImages() {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ErrVisionUnsupported)
	}
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

func (p *Provider) Capabilities() llm.Capabilities { return limitsFor(p.model) }

func (p *Provider) params(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	if len(req.Messages) == 0 {
		return anyllmlib.CompletionParams{}, errors.New("anyllm: request has no messages")
	}
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params, nil
}

// limitsFor knows the context limits of the common model families; anything
// else gets conservative defaults. Vision is never reported.
func limitsFor(model string) llm.Capabilities {
	m := strings.ToLower(model)
	has := func(prefixes ...string) bool {
		return slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(m, p) })
	}
	switch {
	case has("gemini-2.5", "gemini-3"):
		return llm.Capabilities{ContextWindow: 1_048_576, MaxOutputTokens: 65_536}
	case has("gemini"):
		return llm.Capabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}
	case has("claude"):
		return llm.Capabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}
	case has("gpt-4o", "gpt-4.1"):
		return llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}
	case has("gpt-4"):
		return llm.Capabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}
	}
	return llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}
