package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expensebot/internal/bus"
	"expensebot/internal/catalog"
	"expensebot/internal/channel"
	"expensebot/internal/config"
	"expensebot/internal/feedback"
	"expensebot/internal/metrics"
	"expensebot/internal/prompt"
	"expensebot/internal/provider"
	"expensebot/internal/router"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start all enabled channels and the router",
		Long:  "Starts the webhook endpoint and any enabled chat channels, then routes turns until interrupted.",
		RunE:  runServe,
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

// buildRouter wires the provider, catalog client, personas, and feedback
// store into a router reading from the given bus.
func buildRouter(cfg *config.Config, turnBus *bus.InMemoryBus) (*router.Router, *feedback.Store, error) {
	factory := provider.NewFactory(cfg, logger)
	prov, err := factory.DefaultProvider()
	if err != nil {
		return nil, nil, fmt.Errorf("provider: %w", err)
	}

	catalogClient := catalog.New(catalog.Config{
		Endpoint:           cfg.Catalog.Endpoint,
		CustomerID:         cfg.Catalog.CustomerID,
		Timeout:            time.Duration(cfg.Catalog.TimeoutSeconds) * time.Second,
		InsecureSkipVerify: cfg.Catalog.InsecureSkipVerify,
		Logger:             logger,
	})

	personas, err := prompt.Load(cfg.Prompts.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("personas: %w", err)
	}

	var store *feedback.Store
	if cfg.Feedback.Enabled && cfg.Feedback.DBPath != "" {
		store, err = feedback.NewStore(cfg.Feedback.DBPath, logger)
		if err != nil {
			logger.Warn("feedback store unavailable, continuing without it", "err", err)
			store = nil
		}
	}

	providerCfg := cfg.Providers[cfg.General.DefaultProvider]

	r := router.New(router.Config{
		Provider:    prov,
		Catalog:     catalogClient,
		Personas:    personas,
		Bus:         turnBus,
		Feedback:    store,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentTurns,
		Temperature: providerCfg.Temperature,
		MaxTokens:   providerCfg.MaxTokens,
	})
	return r, store, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	turnBus := bus.New(100, logger)
	defer turnBus.Close()

	r, store, err := buildRouter(cfg, turnBus)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	go r.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cliCh.Start(ctx, turnBus)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	turnBus := bus.New(100, logger)

	r, store, err := buildRouter(cfg, turnBus)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	go r.Run(ctx)

	var channels []interface {
		Name() string
		Stop() error
	}

	if cfg.Channels.Webhook.Enabled {
		var metricsHandler http.Handler
		if cfg.Metrics.Enabled {
			metricsHandler = metrics.Collector.Handler()
		}
		webhookCh := channel.NewWebhook(channel.WebhookConfig{
			Port:     cfg.Channels.Webhook.Port,
			Path:     cfg.Channels.Webhook.Path,
			Secret:   cfg.Channels.Webhook.Secret,
			ReplyURL: cfg.Channels.Webhook.ReplyURL,
			Metrics:  metricsHandler,
			Logger:   logger,
		})
		channels = append(channels, webhookCh)
		go func() {
			if err := webhookCh.Start(ctx, turnBus); err != nil {
				logger.Error("webhook channel error", "err", err)
			}
		}()
		logger.Info("webhook channel enabled", "port", cfg.Channels.Webhook.Port)
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		channels = append(channels, telegramCh)
		go func() {
			if err := telegramCh.Start(ctx, turnBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	}

	if cfg.Channels.Slack.Enabled {
		slackCh := channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   logger,
		})
		channels = append(channels, slackCh)
		go func() {
			if err := slackCh.Start(ctx, turnBus); err != nil {
				logger.Error("slack channel error", "err", err)
			}
		}()
		logger.Info("slack channel enabled")
	}

	if cfg.Channels.Discord.Enabled {
		discordCh := channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		})
		channels = append(channels, discordCh)
		go func() {
			if err := discordCh.Start(ctx, turnBus); err != nil {
				logger.Error("discord channel error", "err", err)
			}
		}()
		logger.Info("discord channel enabled")
	}

	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled; enable at least one under channels in %s", cfgPath)
	}

	logger.Info("expensebot started", "version", version, "channels", len(channels))

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop error", "channel", ch.Name(), "err", err)
			}
		}
		turnBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}
