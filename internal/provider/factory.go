package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"expensebot/internal/config"
	"expensebot/internal/domain"
)

// Constructor creates a provider from a config entry.
type Constructor func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory creates and caches LLM providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["openai"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
	f.constructors["azure"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewAzureOpenAI(AzureOpenAIConfig{
			APIKey:     pc.APIKey,
			Endpoint:   pc.APIBase,
			Deployment: pc.Deployment,
			APIVersion: pc.APIVersion,
			Logger:     logger,
		})
	}
	f.constructors["ollama"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is
// empty. Created providers are cached so the same instance is reused.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if p, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[name]; ok {
		return p, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", name)
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("no constructor for provider %q", name)
	}

	p := ctor(pc, f.logger)
	f.cache[name] = p
	return p, nil
}

// DefaultProvider returns the provider named by general.defaultProvider.
func (f *Factory) DefaultProvider() (domain.Provider, error) {
	return f.Get("")
}
