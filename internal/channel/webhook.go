package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"expensebot/internal/domain"
)

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Port     int
	Path     string // activity URL path (default: /api/messages)
	Secret   string // HMAC secret for verifying webhook signatures
	ReplyURL string // optional endpoint replies are POSTed back to
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Webhook accepts bot-framework style activity POSTs over HTTP. It also
// serves the health probe and, when wired, the metrics endpoint.
type Webhook struct {
	port     int
	path     string
	secret   string
	replyURL string
	metrics  http.Handler
	bus      domain.TurnBus
	logger   *slog.Logger
	server   *http.Server
	client   *http.Client
}

// activity is the inbound message shape platforms POST to the webhook.
type activity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	From struct {
		ID string `json:"id"`
	} `json:"from"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Attachments []activityAttachment `json:"attachments"`
}

type activityAttachment struct {
	ContentType string         `json:"contentType"`
	ContentURL  string         `json:"contentUrl"`
	Content     map[string]any `json:"content"`
}

// outboundActivity is the reply shape POSTed to the configured reply URL.
type outboundActivity struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
}

// NewWebhook creates a new webhook channel handler.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/api/messages"
	}
	if cfg.Port == 0 {
		cfg.Port = 3978
	}
	return &Webhook{
		port:     cfg.Port,
		path:     cfg.Path,
		secret:   cfg.Secret,
		replyURL: cfg.ReplyURL,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Start begins the webhook HTTP server.
func (w *Webhook) Start(ctx context.Context, bus domain.TurnBus) error {
	w.bus = bus

	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleActivity)
	mux.HandleFunc("/health", w.handleHealth)
	if w.metrics != nil {
		mux.Handle("/metrics", w.metrics)
	}

	w.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", w.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	bus.OnReply("webhook", func(reply domain.Reply) {
		if reply.Content == "" {
			return
		}
		if w.replyURL == "" {
			w.logger.Debug("webhook reply (no reply_url configured)",
				"chat_id", reply.ChatID, "content_len", len(reply.Content))
			return
		}
		w.forwardReply(reply)
	})

	w.logger.Info("webhook server starting", "port", w.port, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// Stop is a no-op; the server shuts down when Start's context is cancelled.
func (w *Webhook) Stop() error { return nil }

// Send posts a reply to the configured reply URL.
func (w *Webhook) Send(ctx context.Context, chatID string, content string) error {
	if w.replyURL == "" {
		return fmt.Errorf("webhook channel has no reply_url configured")
	}
	w.forwardReply(domain.Reply{Channel: "webhook", ChatID: chatID, Content: content})
	return nil
}

func (w *Webhook) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(rw, "Bot is running!")
}

func (w *Webhook) handleActivity(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Verify HMAC signature if secret is configured.
	if w.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, w.secret, sig) {
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var act activity
	if err := json.Unmarshal(body, &act); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Only message activities carry user turns; typing indicators,
	// membership updates and the like are acknowledged and dropped.
	if act.Type != "message" {
		rw.WriteHeader(http.StatusAccepted)
		return
	}

	chatID := act.Conversation.ID
	if chatID == "" {
		chatID = "webhook-default"
	}
	senderID := act.From.ID
	if senderID == "" {
		senderID = "webhook"
	}

	attachments := make([]domain.Attachment, 0, len(act.Attachments))
	for _, a := range act.Attachments {
		attachments = append(attachments, domain.Attachment{
			ContentType: a.ContentType,
			ContentURL:  a.ContentURL,
			Content:     a.Content,
		})
	}

	w.logger.Info("activity received",
		"chat_id", chatID,
		"sender", senderID,
		"text_len", len(act.Text),
		"attachments", len(attachments),
	)

	w.bus.Publish(domain.Turn{
		Channel:     "webhook",
		ChatID:      chatID,
		SenderID:    senderID,
		Text:        act.Text,
		Attachments: attachments,
		Timestamp:   time.Now(),
	})

	rw.WriteHeader(http.StatusAccepted)
	json.NewEncoder(rw).Encode(map[string]string{
		"status": "accepted",
	})
}

func (w *Webhook) forwardReply(reply domain.Reply) {
	payload, err := json.Marshal(outboundActivity{
		Type:           "message",
		Text:           reply.Content,
		ConversationID: reply.ChatID,
	})
	if err != nil {
		w.logger.Error("marshal outbound activity", "err", err)
		return
	}

	resp, err := w.client.Post(w.replyURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		w.logger.Error("reply forward failed", "reply_url", w.replyURL, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Error("reply forward rejected", "reply_url", w.replyURL, "status", resp.StatusCode)
	}
}

// verifyHMAC verifies the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
