package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIAdapterGenerate(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Hi there!"}},
			},
		})
	}))
	defer ts.Close()

	a := NewOpenAIAdapter(ts.URL, "sk-test", "gpt-4o-mini")
	text, err := a.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "Hello"},
		},
		MaxTokens:   300,
		Temperature: 0.7,
		TopP:        0.9,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Hi there!" {
		t.Fatalf("text = %q, want %q", text, "Hi there!")
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q, want bearer key", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" || gotReq.MaxTokens != 300 {
		t.Fatalf("upstream request = %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != RoleSystem {
		t.Fatalf("upstream messages = %+v", gotReq.Messages)
	}
}

func TestOpenAIAdapterErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	a := NewOpenAIAdapter(ts.URL, "sk-test", "gpt-4o-mini")
	if _, err := a.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}); err == nil {
		t.Fatalf("Generate() should fail on non-2xx status")
	}
}

func TestOpenAIAdapterEmptyCompletion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer ts.Close()

	a := NewOpenAIAdapter(ts.URL, "sk-test", "gpt-4o-mini")
	if _, err := a.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}); err == nil {
		t.Fatalf("Generate() should fail when no choices are returned")
	}
}

func TestNewAdapterModes(t *testing.T) {
	if _, mode, err := NewAdapter(Config{Provider: "mock"}); err != nil || mode != "mock" {
		t.Fatalf("NewAdapter(mock) = %q, %v", mode, err)
	}
	if _, _, err := NewAdapter(Config{Provider: "openai"}); err == nil {
		t.Fatalf("NewAdapter(openai) without a key should fail")
	}
	if _, mode, err := NewAdapter(Config{Provider: "auto"}); err != nil || mode != "mock" {
		t.Fatalf("NewAdapter(auto) with no keys = %q, %v, want mock", mode, err)
	}
	if _, mode, err := NewAdapter(Config{Provider: "auto", OpenAIAPIKey: "sk", OpenAIBaseURL: "http://x", OpenAIModel: "m"}); err != nil || mode != "openai" {
		t.Fatalf("NewAdapter(auto) with an openai key = %q, %v, want openai", mode, err)
	}
	if _, _, err := NewAdapter(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("NewAdapter should reject unknown providers")
	}
}
