package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for ExpenseBot. Loaded once at startup
// and treated as read-only afterwards.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Channels  ChannelsConfig            `json:"channels"`
	Catalog   CatalogConfig             `json:"catalog"`
	Prompts   PromptsConfig             `json:"prompts"`
	Feedback  FeedbackConfig            `json:"feedback"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel           string `json:"logLevel"`
	LogFile            string `json:"logFile,omitempty"`
	DefaultProvider    string `json:"defaultProvider"`
	MaxConcurrentTurns int    `json:"maxConcurrentTurns"`
}

// ProviderConfig configures one LLM provider entry. The map key in
// Config.Providers selects the constructor (openai | azure | ollama).
type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
	Deployment   string `json:"deployment,omitempty"` // azure deployment name
	APIVersion   string `json:"apiVersion,omitempty"` // azure api-version
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty"`
}

type ChannelsConfig struct {
	Webhook  WebhookConfig  `json:"webhook"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	CLI      CLIConfig      `json:"cli"`
}

// WebhookConfig configures the platform webhook endpoint the bot framework
// posts activities to.
type WebhookConfig struct {
	Enabled  bool   `json:"enabled"`
	Port     int    `json:"port"`
	Path     string `json:"path,omitempty"`     // default: /api/messages
	Secret   string `json:"secret,omitempty"`   // HMAC secret for signature checks
	ReplyURL string `json:"replyUrl,omitempty"` // where to POST replies; empty = log only
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"`
	ParseMode string   `json:"parseMode,omitempty"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict to specific guild
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// CatalogConfig configures the external store/catalog API.
// InsecureSkipVerify disables TLS certificate validation for the catalog
// call only; it is off by default and logged loudly when enabled.
type CatalogConfig struct {
	Endpoint           string `json:"endpoint"`
	CustomerID         string `json:"customerId"`
	TimeoutSeconds     int    `json:"timeoutSeconds"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty"`
}

// PromptsConfig points at an optional personas YAML file overriding the
// built-in system prompts.
type PromptsConfig struct {
	Path string `json:"path,omitempty"`
}

type FeedbackConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.expensebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".expensebot"
	}
	return filepath.Join(home, ".expensebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Feedback.DBPath = ExpandPath(cfg.Feedback.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Prompts.Path = ExpandPath(cfg.Prompts.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentTurns < 1 || cfg.General.MaxConcurrentTurns > 100 {
		errs = append(errs, "general.maxConcurrentTurns must be between 1 and 100")
	}

	if cfg.Channels.Webhook.Port < 0 || cfg.Channels.Webhook.Port > 65535 {
		errs = append(errs, "channels.webhook.port must be between 0 and 65535")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Channels.Slack.Enabled && (cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "") {
		errs = append(errs, "channels.slack: botToken and appToken are required when slack is enabled")
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}

	if cfg.Catalog.Endpoint == "" {
		errs = append(errs, "catalog.endpoint is required")
	}
	if cfg.Catalog.CustomerID == "" {
		errs = append(errs, "catalog.customerId is required")
	}
	if cfg.Catalog.TimeoutSeconds < 1 {
		errs = append(errs, "catalog.timeoutSeconds must be >= 1")
	}

	// Validate provider configs.
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch name {
		case "azure":
			if pc.APIBase == "" || pc.Deployment == "" {
				errs = append(errs, "providers.azure: apiBase and deployment are required")
			}
		case "openai":
			// apiBase has a default; key is required
			if pc.APIKey == "" {
				errs = append(errs, "providers.openai: apiKey is required")
			}
		case "ollama":
			// all fields have defaults
		default:
			errs = append(errs, fmt.Sprintf("providers.%s: unknown provider kind", name))
		}
	}
	if cfg.General.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
			errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
