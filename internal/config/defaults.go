package config

// Defaults returns a config that runs the CLI channel against a local
// Ollama instance with no catalog credentials filled in.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:           "info",
			DefaultProvider:    "ollama",
			MaxConcurrentTurns: 5,
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.2-vision",
			},
		},
		Channels: ChannelsConfig{
			Webhook: WebhookConfig{
				Enabled: false,
				Port:    3978,
				Path:    "/api/messages",
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Catalog: CatalogConfig{
			Endpoint:       "${CATALOG_ENDPOINT}",
			CustomerID:     "6",
			TimeoutSeconds: 120,
		},
		Feedback: FeedbackConfig{
			Enabled: true,
			DBPath:  "~/.expensebot/feedback.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}
