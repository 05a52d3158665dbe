package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/iq360/pkg/provider/llm"
	llmmock "github.com/MrWong99/iq360/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("503")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}
	fb := NewLLMFallback(BreakerConfig{Threshold: 3}).Add("primary", primary).Add("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "comps"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("calls = %d/%d", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestLLMFallback_ImagesRouteToVision(t *testing.T) {
	text := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "text"}}
	vision := &llmmock.Provider{
		ModelCapabilities: llm.Capabilities{SupportsVision: true},
		CompleteResponse:  &llm.CompletionResponse{Content: "vision"},
	}
	fb := NewLLMFallback(BreakerConfig{}).Add("text", text).Add("vision", vision)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Images: []llm.Image{{Data: []byte{0xff}}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "vision" || len(text.Calls()) != 0 {
		t.Errorf("content = %q, text calls = %d", resp.Content, len(text.Calls()))
	}
}

func TestLLMFallback_NoVisionBackend(t *testing.T) {
	fb := NewLLMFallback(BreakerConfig{}).Add("text", &llmmock.Provider{})
	_, err := fb.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Images: []llm.Image{{Data: []byte{1}}}}},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	fb := NewLLMFallback(BreakerConfig{}).
		Add("a", &llmmock.Provider{ModelCapabilities: llm.Capabilities{ContextWindow: 1_000_000, MaxOutputTokens: 8192, SupportsVision: true}}).
		Add("b", &llmmock.Provider{ModelCapabilities: llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}})

	got := fb.Capabilities()
	want := llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 8192, SupportsVision: true}
	if got != want {
		t.Errorf("caps = %+v, want %+v", got, want)
	}
	if len(fb.States()) != 2 {
		t.Errorf("states = %v", fb.States())
	}
}
