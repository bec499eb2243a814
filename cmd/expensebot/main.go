package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"expensebot/internal/config"
	"expensebot/internal/feedback"
	"expensebot/internal/provider"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "expensebot",
		Short: "ExpenseBot: receipt-analyzing expense assistant",
		Long:  "ExpenseBot routes chat turns from Teams-style webhooks, Telegram, Slack, and Discord to an LLM, analyzes receipt images, and delegates store questions to a catalog API.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.expensebot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config or falls back to defaults, and reconfigures
// the process logger per general.logLevel / general.logFile.
func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	configureLogger(cfg)
	return cfg
}

func configureLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider health and recent turn outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := context.Background()

			factory := provider.NewFactory(cfg, logger)
			prov, err := factory.DefaultProvider()
			if err != nil {
				logger.Error("no default provider", "err", err)
			} else if err := prov.Healthy(ctx); err != nil {
				logger.Info("provider", "name", prov.Name(), "model", prov.Model(), "healthy", false, "err", err)
			} else {
				logger.Info("provider", "name", prov.Name(), "model", prov.Model(), "healthy", true)
			}

			if cfg.Feedback.Enabled && cfg.Feedback.DBPath != "" {
				store, err := feedback.NewStore(cfg.Feedback.DBPath, logger)
				if err != nil {
					logger.Warn("feedback store unavailable", "err", err)
					return nil
				}
				defer store.Close()

				recs, err := store.Recent(ctx, 10)
				if err != nil {
					return err
				}
				for _, r := range recs {
					logger.Info("turn",
						"id", r.TurnID,
						"channel", r.Channel,
						"kind", r.Kind,
						"success", r.Success,
						"error_kind", r.ErrorKind,
						"latency_ms", r.LatencyMs,
						"at", r.CreatedAt.Format("2006-01-02 15:04:05"),
					)
				}
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			redacted := *cfg
			redacted.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
			for name, pc := range cfg.Providers {
				if pc.APIKey != "" {
					pc.APIKey = "***"
				}
				redacted.Providers[name] = pc
			}
			redacted.Channels.Telegram.Token = redact(cfg.Channels.Telegram.Token)
			redacted.Channels.Slack.BotToken = redact(cfg.Channels.Slack.BotToken)
			redacted.Channels.Slack.AppToken = redact(cfg.Channels.Slack.AppToken)
			redacted.Channels.Discord.Token = redact(cfg.Channels.Discord.Token)
			redacted.Channels.Webhook.Secret = redact(cfg.Channels.Webhook.Secret)

			data, _ := json.MarshalIndent(redacted, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
