package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"expensebot/internal/domain"
)

// OpenAI implements domain.Provider for OpenAI-compatible chat completion
// APIs, including multimodal (vision) requests.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  SharedHTTPClient(defaultHTTPTimeout),
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openai: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai returned %d", resp.StatusCode)
	}
	return nil
}

// --- chat completions wire format (shared with the Azure provider) ---

type oaiRequest struct {
	Model       string       `json:"model,omitempty"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

// oaiMessage carries either a plain string or an array of typed content
// parts in Content, matching the chat completions schema.
type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// encodeMessages converts domain messages into the wire shape, expanding
// multimodal parts into data-URL image entries.
func encodeMessages(messages []domain.Message) []oaiMessage {
	msgs := make([]oaiMessage, 0, len(messages))
	for _, m := range messages {
		if !m.IsMultimodal() {
			msgs = append(msgs, oaiMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]oaiContentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case domain.PartText:
				parts = append(parts, oaiContentPart{Type: "text", Text: p.Text})
			case domain.PartImage:
				mediaType := p.MediaType
				if mediaType == "" {
					mediaType = "image/jpeg"
				}
				parts = append(parts, oaiContentPart{
					Type: "image_url",
					ImageURL: &oaiImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", mediaType, p.ImageB64),
						Detail: p.Detail,
					},
				})
			}
		}
		msgs = append(msgs, oaiMessage{Role: m.Role, Content: parts})
	}
	return msgs
}

func buildOAIRequest(req domain.ChatRequest, model string) oaiRequest {
	body := oaiRequest{
		Model:    model,
		Messages: encodeMessages(req.Messages),
		Stream:   false,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	return body
}

// postChat sends a chat completion request and decodes the first choice.
func postChat(ctx context.Context, client *http.Client, url string, headers map[string]string, body oaiRequest, label string) (*domain.ChatResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %d: %s", label, resp.StatusCode, string(respBody))
	}

	var decoded oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := &domain.ChatResponse{LatencyMs: time.Since(start).Milliseconds()}
	if len(decoded.Choices) > 0 {
		out.Content = decoded.Choices[0].Message.Content
	}
	out.Usage = domain.Usage{
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
		TotalTokens:      decoded.Usage.TotalTokens,
	}
	return out, nil
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	body := buildOAIRequest(req, model)
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return postChat(ctx, o.client, o.apiBase+"/chat/completions", headers, body, "openai")
}
