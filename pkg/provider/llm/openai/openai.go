// Package openai talks to the Chat Completions API through openai-go.
//
// It is the vision path of the analysis service: property photos are sent
// as base64 data URLs in image_url parts. Pointed at [GeminiBaseURL] the
// same client drives Gemini models.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/iq360/pkg/provider/llm"
)

// GeminiBaseURL is Google's OpenAI-compatible Gemini endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Option adjusts the underlying client.
type Option func(*[]option.RequestOption)

func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *[]option.RequestOption) {
		*o = append(*o, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// Provider is an [llm.Provider] for one chat model.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.Capabilities
}

// New returns a Provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		caps:   modelCapabilities(model),
	}, nil
}

func (p *Provider) Capabilities() llm.Capabilities { return p.caps }

// Complete sends req as one chat completion. Images on a model without
// vision fail with [llm.ErrVisionUnsupported] before any request is made.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.HasImages() && !p.caps.SupportsVision {
		return nil, fmt.Errorf("openai: %s: %w", p.model, llm.ErrVisionUnsupported)
	}
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s returned no choices", p.model)
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

// family limits, first prefix match wins.
var families = []struct {
	prefix string
	caps   llm.Capabilities
}{
	{"gpt-5", llm.Capabilities{ContextWindow: 400_000, MaxOutputTokens: 128_000, SupportsVision: true}},
	{"gpt-4o", llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsVision: true}},
	{"gpt-4.1", llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsVision: true}},
	{"gpt-4-turbo", llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsVision: true}},
	{"gpt-4", llm.Capabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{"o1-mini", llm.Capabilities{ContextWindow: 200_000, MaxOutputTokens: 65_536}},
	{"o3-mini", llm.Capabilities{ContextWindow: 200_000, MaxOutputTokens: 65_536}},
	{"o1", llm.Capabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsVision: true}},
	{"o3", llm.Capabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsVision: true}},
	{"o4", llm.Capabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsVision: true}},
	{"gemini", llm.Capabilities{ContextWindow: 1_048_576, MaxOutputTokens: 65_536, SupportsVision: true}},
}

// modelCapabilities treats unknown models as text-only.
func modelCapabilities(model string) llm.Capabilities {
	m := strings.ToLower(model)
	for _, f := range families {
		if strings.HasPrefix(m, f.prefix) {
			return f.caps
		}
	}
	return llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("request has no messages")
	}
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat.OfJSONObject = &shared.ResponseFormatJSONObjectParam{}
	}
	return params, nil
}

// convertMessage maps one message. A user message with images becomes a
// text part followed by one image_url part per image.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	case llm.RoleUser:
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown role %q", m.Role)
	}
	if len(m.Images) == 0 {
		return oai.UserMessage(m.Content), nil
	}
	var parts []oai.ChatCompletionContentPartUnionParam
	if m.Content != "" {
		parts = append(parts, oai.TextContentPart(m.Content))
	}
	for _, img := range m.Images {
		parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL(img)}))
	}
	return oai.UserMessage(parts), nil
}

// dataURL inlines img, assuming JPEG when the type is unknown.
func dataURL(img llm.Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
