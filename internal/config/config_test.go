package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("EXPENSEBOT_TEST_KEY", "sk-123")
	out := ExpandEnvVars(`{"apiKey": "${EXPENSEBOT_TEST_KEY}"}`)
	if !strings.Contains(out, "sk-123") {
		t.Errorf("expected substitution, got %s", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("EXPENSEBOT_UNSET_VAR")
	out := ExpandEnvVars(`${EXPENSEBOT_UNSET_VAR:-fallback}`)
	if out != "fallback" {
		t.Errorf("expected fallback, got %s", out)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("EXPENSEBOT_UNSET_VAR")
	in := `${EXPENSEBOT_UNSET_VAR}`
	if out := ExpandEnvVars(in); out != in {
		t.Errorf("expected original kept, got %s", out)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Defaults()
	cfg.Catalog.Endpoint = "https://catalog.example.com/api/create_response"
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate_MissingCatalog(t *testing.T) {
	cfg := Defaults()
	cfg.Catalog.Endpoint = ""
	cfg.Catalog.CustomerID = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "catalog.endpoint") {
		t.Errorf("expected catalog.endpoint error, got %v", err)
	}
}

func TestValidate_BadConcurrency(t *testing.T) {
	cfg := Defaults()
	cfg.Catalog.Endpoint = "https://catalog.example.com"
	cfg.General.MaxConcurrentTurns = 0
	if Validate(cfg) == nil {
		t.Error("expected error for zero concurrency")
	}
}

func TestValidate_UnknownProviderKind(t *testing.T) {
	cfg := Defaults()
	cfg.Catalog.Endpoint = "https://catalog.example.com"
	cfg.Providers["mystery"] = ProviderConfig{Enabled: true}
	if Validate(cfg) == nil {
		t.Error("expected error for unknown provider kind")
	}
}

func TestValidate_UnknownDefaultProvider(t *testing.T) {
	cfg := Defaults()
	cfg.Catalog.Endpoint = "https://catalog.example.com"
	cfg.General.DefaultProvider = "missing"
	if Validate(cfg) == nil {
		t.Error("expected error for unknown default provider")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Catalog.Endpoint = "https://catalog.example.com/api/create_response"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Catalog.CustomerID != "6" {
		t.Errorf("expected customer id 6, got %q", loaded.Catalog.CustomerID)
	}
	if loaded.Catalog.TimeoutSeconds != 120 {
		t.Errorf("expected 120s timeout, got %d", loaded.Catalog.TimeoutSeconds)
	}
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("CATALOG_ENDPOINT_TEST", "https://catalog.test/api")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	body := `{"catalog": {"endpoint": "${CATALOG_ENDPOINT_TEST}", "customerId": "6", "timeoutSeconds": 120}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Catalog.Endpoint != "https://catalog.test/api" {
		t.Errorf("expected substituted endpoint, got %q", cfg.Catalog.Endpoint)
	}
}
