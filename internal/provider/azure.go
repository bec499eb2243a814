package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"expensebot/internal/domain"
)

const azureDefaultAPIVersion = "2024-02-15-preview"

// AzureOpenAI implements domain.Provider for Azure OpenAI deployments.
// The wire format matches chat completions; only the URL scheme and the
// api-key header differ from the OpenAI provider.
type AzureOpenAI struct {
	apiKey     string
	endpoint   string
	deployment string
	apiVersion string
	client     *http.Client
	logger     *slog.Logger
}

type AzureOpenAIConfig struct {
	APIKey     string
	Endpoint   string // e.g. https://myresource.openai.azure.com
	Deployment string
	APIVersion string
	Logger     *slog.Logger
}

func NewAzureOpenAI(cfg AzureOpenAIConfig) *AzureOpenAI {
	if cfg.APIVersion == "" {
		cfg.APIVersion = azureDefaultAPIVersion
	}
	return &AzureOpenAI{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		client:     SharedHTTPClient(defaultHTTPTimeout),
		logger:     cfg.Logger,
	}
}

func (a *AzureOpenAI) Name() string { return "azure" }

// Model reports the deployment name; Azure routes by deployment, not model.
func (a *AzureOpenAI) Model() string { return a.deployment }

func (a *AzureOpenAI) chatURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.endpoint, url.PathEscape(a.deployment), url.QueryEscape(a.apiVersion))
}

func (a *AzureOpenAI) Healthy(ctx context.Context) error {
	u := fmt.Sprintf("%s/openai/models?api-version=%s", a.endpoint, url.QueryEscape(a.apiVersion))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("api-key", a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("azure openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("azure openai: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("azure openai returned %d", resp.StatusCode)
	}
	return nil
}

func (a *AzureOpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	// The deployment pins the model, so the body omits it.
	body := buildOAIRequest(req, "")
	headers := map[string]string{"api-key": a.apiKey}
	return postChat(ctx, a.client, a.chatURL(), headers, body, "azure openai")
}
