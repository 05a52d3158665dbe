package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/iq360/pkg/provider/llm"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		got, err := convertMessage(llm.Message{Role: role, Content: "hi"})
		if err != nil {
			t.Fatalf("%s: %v", role, err)
		}
		var ok bool
		switch role {
		case llm.RoleSystem:
			ok = got.OfSystem != nil
		case llm.RoleUser:
			ok = got.OfUser != nil
		case llm.RoleAssistant:
			ok = got.OfAssistant != nil
		}
		if !ok {
			t.Errorf("%s: wrong union variant", role)
		}
	}

	if _, err := convertMessage(llm.Message{Role: "tool"}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestConvertMessage_ImagesBecomeParts(t *testing.T) {
	t.Parallel()

	got, err := convertMessage(llm.Message{
		Role:    llm.RoleUser,
		Content: "Assess this roof.",
		Images:  []llm.Image{{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	parts := got.OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0].OfText == nil || parts[0].OfText.Text != "Assess this roof." {
		t.Errorf("first part = %+v", parts[0])
	}
	if parts[1].OfImageURL == nil || parts[1].OfImageURL.ImageURL.URL != "data:image/jpeg;base64,/9j/" {
		t.Errorf("image part = %+v", parts[1])
	}
}

func TestDataURL_DefaultsToJPEG(t *testing.T) {
	t.Parallel()
	if got := dataURL(llm.Image{Data: []byte("x")}); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Errorf("dataURL = %q", got)
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model  string
		vision bool
	}{
		{"gpt-4o-mini", true},
		{"gpt-4", false},
		{"o3-mini", false},
		{"gemini-2.5-flash", true},
		{"some-local-model", false},
	}
	for _, tt := range tests {
		if got := modelCapabilities(tt.model).SupportsVision; got != tt.vision {
			t.Errorf("%s: vision = %v, want %v", tt.model, got, tt.vision)
		}
	}
}

func TestComplete_SendsRequestAndParsesReply(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"healthScore\":0.7}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are an analyst.",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Analyse.",
			Images:  []llm.Image{{Data: []byte("img"), MIMEType: "image/png"}},
		}},
		JSON:      true,
		MaxTokens: 512,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"healthScore":0.7}` || resp.Usage.TotalTokens != 17 {
		t.Errorf("resp = %+v", resp)
	}

	if body["model"] != "gpt-4o" {
		t.Errorf("model = %v", body["model"])
	}
	if rf, _ := body["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v", body["response_format"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	if !strings.Contains(mustJSON(t, msgs[1]), "data:image/png;base64,aW1n") {
		t.Errorf("user message missing image data URL: %s", mustJSON(t, msgs[1]))
	}
}

func TestComplete_RejectsImagesForTextModel(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test", "gpt-4", WithBaseURL("http://127.0.0.1:1/"))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Images: []llm.Image{{Data: []byte("x")}}}},
	})
	if !errors.Is(err, llm.ErrVisionUnsupported) {
		t.Errorf("err = %v, want ErrVisionUnsupported", err)
	}
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("sk", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
