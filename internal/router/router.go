// Package router is the message-routing core: it takes one inbound turn,
// picks a response strategy (text chat, receipt analysis, or catalog
// delegation), calls the model, and normalizes every outcome into a single
// result handed back to the originating channel.
package router

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"expensebot/internal/domain"
	"expensebot/internal/feedback"
	"expensebot/internal/metrics"
	"expensebot/internal/prompt"
)

const (
	defaultConcurrency = 3
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7

	imageDownloadFailedMsg = "Failed to download image"
	catalogUnavailableMsg  = "Unable to access store information at this time. Please try again later."
)

// CatalogClient answers delegated store questions.
type CatalogClient interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Config holds the router's dependencies and tuning parameters.
type Config struct {
	Provider    domain.Provider
	Catalog     CatalogClient
	Fetcher     *ImageFetcher
	Personas    *prompt.Library
	Bus         domain.TurnBus
	Feedback    *feedback.Store // optional
	Logger      *slog.Logger
	Concurrency int
	Temperature float64
	MaxTokens   int
}

// Router processes turns end-to-end. It holds no per-turn state; multiple
// turns run concurrently without coordination beyond the semaphore in Run.
type Router struct {
	provider    domain.Provider
	catalog     CatalogClient
	fetcher     *ImageFetcher
	personas    *prompt.Library
	bus         domain.TurnBus
	feedback    *feedback.Store
	logger      *slog.Logger
	concurrency int
	temperature float64
	maxTokens   int
}

func New(cfg Config) *Router {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewImageFetcher()
	}
	if cfg.Personas == nil {
		cfg.Personas = prompt.Defaults()
	}
	return &Router{
		provider:    cfg.Provider,
		catalog:     cfg.Catalog,
		fetcher:     cfg.Fetcher,
		personas:    cfg.Personas,
		bus:         cfg.Bus,
		feedback:    cfg.Feedback,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Run consumes turns from the bus and processes them with bounded
// concurrency until the context is cancelled or the bus closes.
func (r *Router) Run(ctx context.Context) {
	r.logger.Info("router started", "concurrency", r.concurrency, "provider", r.provider.Name())

	sem := make(chan struct{}, r.concurrency)
	inbound := r.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router stopping")
			return
		case turn, ok := <-inbound:
			if !ok {
				r.logger.Info("inbound channel closed, router stopping")
				return
			}
			sem <- struct{}{}
			go func(t domain.Turn) {
				defer func() { <-sem }()
				result := r.ProcessTurn(ctx, t)
				r.bus.SendReply(domain.Reply{
					Channel: t.Channel,
					ChatID:  t.ChatID,
					Content: result.ReplyText(),
				})
			}(turn)
		}
	}
}

// ProcessDirect runs a text-only turn synchronously and returns the reply
// text. Used by the CLI channel and health probes.
func (r *Router) ProcessDirect(ctx context.Context, text, channel, chatID string) string {
	result := r.ProcessTurn(ctx, domain.Turn{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  "user",
		Text:      text,
		Timestamp: time.Now(),
	})
	return result.ReplyText()
}

// ProcessTurn runs the full pipeline for one turn. Every failure, including
// a panic anywhere below, comes back as a failed result; nothing propagates
// past this boundary.
func (r *Router) ProcessTurn(ctx context.Context, turn domain.Turn) (result domain.OperationResult) {
	start := time.Now()
	metrics.TurnsTotal.Inc()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while processing turn",
				"turn_id", turn.ID,
				"panic", rec,
			)
			result = domain.FailureResult(domain.ErrKindInternal, fmt.Sprintf("%v", rec), r.provider.Model())
		}
		result.Metadata.LatencyMs = time.Since(start).Milliseconds()
		if !result.Success {
			metrics.TurnFailures.Inc()
		}
		r.record(ctx, turn, result)
	}()

	r.logger.Info("processing turn",
		"turn_id", turn.ID,
		"channel", turn.Channel,
		"text_len", len(turn.Text),
		"attachments", len(turn.Attachments),
	)

	if ref := ExtractImageRef(turn.Attachments); ref != nil {
		return r.processImageTurn(ctx, turn, ref)
	}
	return r.processTextTurn(ctx, turn)
}

// processImageTurn fetches the attachment and asks the model to analyze it.
// Image turns never delegate to the catalog.
func (r *Router) processImageTurn(ctx context.Context, turn domain.Turn, ref *ImageRef) domain.OperationResult {
	metrics.ImageDownloads.Inc()

	raw, err := r.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		metrics.ImageDownloadFailures.Inc()
		r.logger.Error("image download failed", "turn_id", turn.ID, "url", ref.URL, "error", err)
		return domain.FailureResult(domain.ErrKindImageDownload, imageDownloadFailedMsg, r.provider.Model())
	}

	userText := turn.Text
	if userText == "" {
		userText = prompt.DefaultImagePrompt
	}

	messages := []domain.Message{
		domain.TextMessage("system", r.personas.System(prompt.PersonaExpenseAnalyzer)),
		{
			Role: "user",
			Parts: []domain.ContentPart{
				{Type: domain.PartText, Text: userText},
				{
					Type:      domain.PartImage,
					ImageB64:  base64.StdEncoding.EncodeToString(raw),
					MediaType: "image/jpeg",
					Detail:    "high",
				},
			},
		},
	}

	resp, err := r.chat(ctx, messages)
	if err != nil {
		return domain.FailureResult(domain.ErrKindModelInvocation, err.Error(), r.provider.Model())
	}
	return domain.SuccessResult(domain.KindImageAnalysis, resp.Content, r.provider.Model())
}

// processTextTurn asks the model directly, then checks its reply for a
// catalog delegation directive.
func (r *Router) processTextTurn(ctx context.Context, turn domain.Turn) domain.OperationResult {
	messages := []domain.Message{
		domain.TextMessage("system", r.personas.System(prompt.PersonaAssistant)),
		domain.TextMessage("user", turn.Text),
	}

	resp, err := r.chat(ctx, messages)
	if err != nil {
		return domain.FailureResult(domain.ErrKindModelInvocation, err.Error(), r.provider.Model())
	}

	directive, outcome := InterpretDirective(resp.Content)
	switch outcome {
	case DirectiveNone:
		return domain.SuccessResult(domain.KindTextResponse, resp.Content, r.provider.Model())
	case DirectiveParseError:
		// Signalled but unparseable. The user gets the raw reply; we only
		// log so the breakage is visible.
		metrics.DirectiveParseErrors.Inc()
		r.logger.Warn("delegation directive failed to parse",
			"turn_id", turn.ID,
			"content_len", len(resp.Content),
		)
		return domain.SuccessResult(domain.KindTextResponse, resp.Content, r.provider.Model())
	}

	r.logger.Info("delegating to catalog", "turn_id", turn.ID, "query_len", len(directive.Query))
	metrics.CatalogRequestsTotal.Inc()

	catalogStart := time.Now()
	answer, err := r.catalog.Ask(ctx, directive.Query)
	metrics.CatalogLatency.Observe(time.Since(catalogStart).Seconds())
	if err != nil {
		r.logger.Error("catalog delegation failed", "turn_id", turn.ID, "error", err)
		return domain.FailureResult(domain.ErrKindCatalog, catalogUnavailableMsg, r.provider.Model())
	}
	return domain.SuccessResult(domain.KindTextResponse, answer, r.provider.Model())
}

// chat issues one model call with the router's tuning parameters.
func (r *Router) chat(ctx context.Context, messages []domain.Message) (*domain.ChatResponse, error) {
	metrics.ModelRequestsTotal.Inc()
	start := time.Now()
	resp, err := r.provider.Chat(ctx, domain.ChatRequest{
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	metrics.ModelLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("model call failed", "provider", r.provider.Name(), "error", err)
		return nil, err
	}
	return resp, nil
}

// record writes the turn outcome to the feedback store when one is wired.
func (r *Router) record(ctx context.Context, turn domain.Turn, result domain.OperationResult) {
	if r.feedback == nil {
		return
	}
	rec := feedback.Record{
		TurnID:    turn.ID,
		Channel:   turn.Channel,
		ChatID:    turn.ChatID,
		Kind:      string(result.Metadata.Kind),
		Success:   result.Success,
		ErrorKind: result.Metadata.ErrorKind,
		Model:     result.Metadata.Model,
		LatencyMs: result.Metadata.LatencyMs,
	}
	if err := r.feedback.Record(ctx, rec); err != nil {
		r.logger.Warn("failed to record turn outcome", "turn_id", turn.ID, "error", err)
	}
}
