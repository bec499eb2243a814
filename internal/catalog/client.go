// Package catalog implements the client for the external store/catalog API
// the model can delegate shopping questions to.
package catalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout = 120 * time.Second // the downstream can be slow

	// DefaultCustomerID is the fixed customer identity this deployment
	// queries the catalog as. Per-turn customer identity is intentionally
	// not supported.
	DefaultCustomerID = "6"

	// emptyChatHistory is sent verbatim; the catalog API expects a
	// stringified list, and this bot never forwards conversation context.
	emptyChatHistory = "[]"
)

// Config configures the catalog client. InsecureSkipVerify must stay off
// outside of isolated test environments; enabling it is logged at startup.
type Config struct {
	Endpoint           string
	CustomerID         string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// Client calls the catalog API. One POST per question, no retries.
type Client struct {
	endpoint   string
	customerID string
	client     *http.Client
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.CustomerID == "" {
		cfg.CustomerID = DefaultCustomerID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureSkipVerify {
		cfg.Logger.Warn("catalog TLS certificate verification is DISABLED; do not run this configuration in production")
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		customerID: cfg.CustomerID,
		client:     httpClient,
		logger:     cfg.Logger,
	}
}

// Endpoint returns the configured catalog URL.
func (c *Client) Endpoint() string { return c.endpoint }

type askRequest struct {
	Question    string `json:"question"`
	CustomerID  string `json:"customer_id"`
	ChatHistory string `json:"chat_history"`
}

type askResponse struct {
	Answer *string `json:"answer"`
}

// Ask sends the question to the catalog API and returns its answer. Any
// transport error, non-200 status, or missing answer field is an error;
// the caller decides what the user sees.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	payload := askRequest{
		Question:    question,
		CustomerID:  c.customerID,
		ChatHistory: emptyChatHistory,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal catalog request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("catalog request", "question_len", len(question))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("catalog returned %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded askResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode catalog response: %w", err)
	}
	if decoded.Answer == nil {
		return "", fmt.Errorf("no answer in catalog response")
	}

	c.logger.Info("catalog answer received", "answer_len", len(*decoded.Answer))
	return *decoded.Answer, nil
}
