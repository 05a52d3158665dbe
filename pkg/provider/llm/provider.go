// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a hosted model API (OpenAI, Gemini's OpenAI-compatible
// endpoint, Anthropic, or a local server) and exposes one request/response
// call. The analysis service uses it for property photo assessment, market
// summaries, and contract drafting without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
)

// ErrVisionUnsupported is returned by providers that cannot accept image
// input when a request carries [Image] parts.
var ErrVisionUnsupported = errors.New("llm: provider does not accept images")

// Well-known message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an inline image attached to a user message.
type Image struct {
	// Data is the raw encoded image (JPEG, PNG, ...).
	Data []byte

	// MIMEType is the media type of Data, e.g. "image/jpeg".
	MIMEType string
}

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], or [RoleAssistant].
	Role string

	// Content is the text content of the message.
	Content string

	// Images are inline images sent along with Content. Only valid on user
	// messages, and only for providers whose Capabilities report vision.
	Images []Image
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the user and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction placed before
	// Messages.
	SystemPrompt string

	// Temperature controls output randomness. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int

	// JSON asks the provider to constrain the reply to a single JSON object
	// where the backend supports it. Callers must still tolerate prose and
	// code fences around the object.
	JSON bool
}

// HasImages reports whether any message carries image parts.
func (r CompletionRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Capabilities describes what a provider's model supports.
type Capabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens generated in one completion.
	MaxOutputTokens int

	// SupportsVision indicates the model accepts image input.
	SupportsVision bool
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() Capabilities
}
