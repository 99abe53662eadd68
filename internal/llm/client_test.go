package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quickhelp/quickhelp/internal/config"
)

type stubProvider struct {
	content string
	usage   *Usage
	err     error
	prompts []string
	block   bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, prompt string) (string, *Usage, error) {
	s.prompts = append(s.prompts, prompt)
	if s.block {
		<-ctx.Done()
		return "", nil, ctx.Err()
	}
	return s.content, s.usage, s.err
}

func (s *stubProvider) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, *Usage, error) {
	return s.Complete(ctx, prompt)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantName string
		wantErr  error
	}{
		{name: "openai", provider: "openai", wantName: "openai"},
		{name: "openai mixed case", provider: "OpenAI", wantName: "openai"},
		{name: "gemini", provider: "gemini", wantName: "gemini"},
		{name: "unknown", provider: "claude", wantErr: ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.provider, "token", "", "model")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewProvider() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewClient(nil) error = %v", err)
	}

	cfg := &config.Config{LLMProvider: "openai", LLMToken: "sk-test", LLMModel: "gpt-3.5-turbo"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() unexpected error: %v", err)
	}
	if client.provider.Name() != "openai" {
		t.Errorf("provider = %q", client.provider.Name())
	}

	cfg.LLMProvider = "nope"
	if _, err := NewClient(cfg); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("NewClient() error = %v, want ErrUnknownProvider", err)
	}
}

func TestClient_Ask(t *testing.T) {
	stub := &stubProvider{content: "  Photosynthesis turns light into sugar.\n", usage: &Usage{TotalTokens: 12}}
	client := NewClientWithProvider(stub, time.Second)

	answer, err := client.Ask(context.Background(), "What is photosynthesis?")
	if err != nil {
		t.Fatalf("Ask() unexpected error: %v", err)
	}
	if answer != "Photosynthesis turns light into sugar." {
		t.Errorf("Ask() = %q", answer)
	}
	if len(stub.prompts) != 1 || stub.prompts[0] != "What is photosynthesis?" {
		t.Errorf("question was not forwarded verbatim: %v", stub.prompts)
	}
}

func TestClient_AskEmptyResponse(t *testing.T) {
	client := NewClientWithProvider(&stubProvider{content: " \n "}, 0)

	if _, err := client.Ask(context.Background(), "q"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Ask() error = %v, want ErrEmptyResponse", err)
	}
}

func TestClient_AskTimeout(t *testing.T) {
	client := NewClientWithProvider(&stubProvider{block: true}, 20*time.Millisecond)

	_, err := client.Ask(context.Background(), "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Ask() error = %v, want deadline exceeded", err)
	}
}

func TestClient_AnswerFormatsErrors(t *testing.T) {
	client := NewClientWithProvider(&stubProvider{err: errors.New("rate limited")}, 0)

	reply, err := client.Answer(context.Background(), "q")
	if err == nil {
		t.Fatal("Answer() expected error")
	}
	if reply != "Error: rate limited" {
		t.Errorf("Answer() reply = %q", reply)
	}
}

func TestClient_NilSafe(t *testing.T) {
	var client *Client
	if _, err := client.Ask(context.Background(), "q"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Ask() on nil client error = %v", err)
	}
	reply, _ := client.Answer(context.Background(), "q")
	if !strings.HasPrefix(reply, ErrorPrefix) {
		t.Errorf("Answer() on nil client reply = %q", reply)
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var gotBody map[string]interface{}
	var gotAuth, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-3.5-turbo",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "x = 4"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
		}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", server.URL+"/", "gpt-3.5-turbo")
	content, usage, err := p.Complete(context.Background(), "Solve 2x = 8")
	if err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}

	if content != "x = 4" {
		t.Errorf("content = %q", content)
	}
	if usage == nil || usage.TotalTokens != 12 || usage.PromptTokens != 9 {
		t.Errorf("usage = %+v", usage)
	}
	if !strings.HasSuffix(gotPath, "/chat/completions") {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-3.5-turbo" {
		t.Errorf("model = %v", gotBody["model"])
	}
	messages, _ := gotBody["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
	msg, _ := messages[0].(map[string]interface{})
	if msg["role"] != "user" || msg["content"] != "Solve 2x = 8" {
		t.Errorf("message = %v", msg)
	}
}

func TestOpenAIProvider_CompleteWithImage(t *testing.T) {
	var raw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		raw = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"2 + 2 = ?"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", server.URL+"/", "gpt-4o-mini")
	content, _, err := p.CompleteWithImage(context.Background(), "transcribe", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("CompleteWithImage() unexpected error: %v", err)
	}
	if content != "2 + 2 = ?" {
		t.Errorf("content = %q", content)
	}
	if !strings.Contains(raw, "data:image/jpeg;base64,aW1n") {
		t.Errorf("request did not carry the image as a data URI: %s", raw)
	}
	if !strings.Contains(raw, "transcribe") {
		t.Errorf("request did not carry the prompt: %s", raw)
	}
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", server.URL+"/", "gpt-3.5-turbo")
	if _, _, err := p.Complete(context.Background(), "q"); err == nil {
		t.Fatal("Complete() expected error")
	}
	if calls != 1 {
		t.Errorf("provider was called %d times, want exactly 1", calls)
	}
}

func TestGeminiProvider_Complete(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Mitochondria "}, {"text": "make ATP."}]}}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 5, "totalTokenCount": 9}
		}`)
	}))
	defer server.Close()

	p, err := NewGeminiProvider("key", server.URL, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("NewGeminiProvider() unexpected error: %v", err)
	}

	content, usage, err := p.Complete(context.Background(), "What do mitochondria do?")
	if err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}
	if content != "Mitochondria make ATP." {
		t.Errorf("content = %q", content)
	}
	if usage == nil || usage.TotalTokens != 9 {
		t.Errorf("usage = %+v", usage)
	}
	if !strings.Contains(gotPath, "gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates": []}`)
	}))
	defer server.Close()

	p, err := NewGeminiProvider("key", server.URL, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("NewGeminiProvider() unexpected error: %v", err)
	}
	if _, _, err := p.Complete(context.Background(), "q"); err == nil {
		t.Error("Complete() expected error for empty candidates")
	}
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider("", "", "gemini-2.5-flash"); err == nil {
		t.Error("NewGeminiProvider() expected error without API key")
	}
}
