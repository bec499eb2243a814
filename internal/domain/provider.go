package domain

import "context"

// Provider is the interface all LLM providers must implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Model() string
	Healthy(ctx context.Context) error
}

type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Content   string
	Usage     Usage
	LatencyMs int64 // time taken for this LLM call in milliseconds
}

// PartType identifies a multimodal content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type      PartType
	Text      string
	ImageB64  string // base64-encoded image bytes, no data: prefix
	MediaType string // e.g. image/jpeg
	Detail    string // low | high | auto
}

// Message is a single chat message. When Parts is non-empty the message is
// multimodal and Content is ignored by providers.
type Message struct {
	Role    string // system | user | assistant
	Content string
	Parts   []ContentPart
}

// TextMessage builds a plain text message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// IsMultimodal reports whether the message carries typed content parts.
func (m Message) IsMultimodal() bool { return len(m.Parts) > 0 }

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
