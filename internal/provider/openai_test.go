package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"expensebot/internal/config"
	"expensebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestOpenAIChat_TextOnly(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		captured, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "test-key", APIBase: srv.URL, Model: "gpt-4o", Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			domain.TextMessage("system", "be brief"),
			domain.TextMessage("user", "hello"),
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi there" {
		t.Errorf("expected hi there, got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("expected 5 total tokens, got %d", resp.Usage.TotalTokens)
	}

	var body map[string]any
	if err := json.Unmarshal(captured, &body); err != nil {
		t.Fatal(err)
	}
	if body["model"] != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %v", body["model"])
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if first := msgs[0].(map[string]any); first["content"] != "be brief" {
		t.Errorf("system content mangled: %v", first["content"])
	}
}

func TestOpenAIChat_Multimodal(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"choices":[{"message":{"content":"a receipt"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			domain.TextMessage("system", "analyze"),
			{Role: "user", Parts: []domain.ContentPart{
				{Type: domain.PartText, Text: "what is this"},
				{Type: domain.PartImage, ImageB64: "aGVsbG8=", MediaType: "image/png", Detail: "high"},
			}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	body := string(captured)
	if !strings.Contains(body, `"type":"image_url"`) {
		t.Error("expected image_url content part")
	}
	if !strings.Contains(body, "data:image/png;base64,aGVsbG8=") {
		t.Error("expected data URL with base64 payload")
	}
	if !strings.Contains(body, `"detail":"high"`) {
		t.Error("expected high detail")
	}
}

func TestOpenAIChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{domain.TextMessage("user", "hello")},
	})
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestAzureChat_URLAndHeader(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("api-key")
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	p := NewAzureOpenAI(AzureOpenAIConfig{
		APIKey:     "azure-key",
		Endpoint:   srv.URL,
		Deployment: "gpt-4o-deploy",
		Logger:     testLogger(),
	})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{domain.TextMessage("user", "hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected ok, got %q", resp.Content)
	}
	if gotPath != "/openai/deployments/gpt-4o-deploy/chat/completions" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if !strings.Contains(gotQuery, "api-version=") {
		t.Errorf("missing api-version query, got %s", gotQuery)
	}
	if gotKey != "azure-key" {
		t.Errorf("expected api-key header, got %q", gotKey)
	}
}

func TestOllamaChat_ImagesArray(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		captured, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"message":{"role":"assistant","content":"a cat"},"prompt_eval_count":10,"eval_count":4}`)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, DefaultModel: "llava", Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "user", Parts: []domain.ContentPart{
				{Type: domain.PartText, Text: "describe"},
				{Type: domain.PartImage, ImageB64: "aW1n"},
			}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "a cat" {
		t.Errorf("expected a cat, got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 14 {
		t.Errorf("expected 14 tokens, got %d", resp.Usage.TotalTokens)
	}
	if !strings.Contains(string(captured), `"images":["aW1n"]`) {
		t.Errorf("expected images array, got %s", captured)
	}
}

func TestFactory_GetAndCache(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["openai"] = config.ProviderConfig{Enabled: true, APIKey: "k"}
	cfg.General.DefaultProvider = "openai"
	f := NewFactory(cfg, testLogger())

	p1, err := f.DefaultProvider()
	if err != nil {
		t.Fatal(err)
	}
	if p1.Name() != "openai" {
		t.Errorf("expected openai, got %s", p1.Name())
	}
	p2, err := f.Get("openai")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("expected cached instance to be reused")
	}
}

func TestFactory_DisabledProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["openai"] = config.ProviderConfig{Enabled: false, APIKey: "k"}
	f := NewFactory(cfg, testLogger())

	if _, err := f.Get("openai"); err == nil {
		t.Error("expected error for disabled provider")
	}
}

func TestFactory_UnknownProvider(t *testing.T) {
	f := NewFactory(config.Defaults(), testLogger())
	if _, err := f.Get("nope"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
