package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const baseConfig = `{
	"basic_config": {"server_address": ":8090", "prompts_path": "prompts.yaml"},
	"databases": {"sqlite3": {"dsn": "mentora.db"}},
	"llm": {
		"provider": "azure",
		"model": "gpt-4",
		"base_url": "https://file.example.com",
		"api_key": "file-key",
		"timeout_seconds": 60
	}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvAzureEndpoint, EnvAPIVersion, EnvDeploymentName} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvAzureEndpoint, "https://env.example.com")
	t.Setenv(EnvDeploymentName, "gpt-4o")

	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("api key = %q, want env override", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://env.example.com" {
		t.Fatalf("base url = %q, want env override", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("model = %q, want env override", cfg.LLM.Model)
	}
	if cfg.LLM.APIVersion != "2024-02-15" {
		t.Fatalf("api version = %q, want default", cfg.LLM.APIVersion)
	}
}

func TestLoadKeepsFileValuesWithoutEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" || cfg.LLM.Model != "gpt-4" {
		t.Fatalf("file values not preserved: %+v", cfg.LLM)
	}
}

func TestLoadResolvesPromptsPathRelativeToConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, baseConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "prompts.yaml")
	if cfg.BasicConfig.PromptsPath != want {
		t.Fatalf("prompts path = %q, want %q", cfg.BasicConfig.PromptsPath, want)
	}
}

func TestLoadRejectsAzureWithoutSecrets(t *testing.T) {
	clearEnv(t)
	stripped := strings.Replace(baseConfig, `"api_key": "file-key",`, "", 1)
	stripped = strings.Replace(stripped, `"base_url": "https://file.example.com",`, "", 1)
	_, err := Load(writeConfig(t, stripped))
	if err == nil {
		t.Fatalf("expected error for missing azure secrets")
	}
	if !strings.Contains(err.Error(), EnvAPIKey) {
		t.Fatalf("error does not name the missing variable: %v", err)
	}
}

func TestLoadRejectsUnsupportedProvider(t *testing.T) {
	clearEnv(t)
	body := strings.Replace(baseConfig, `"provider": "azure"`, `"provider": "mystery"`, 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
