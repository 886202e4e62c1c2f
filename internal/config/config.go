package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	LLM         LLMConfig                 `json:"llm"`
	Speech      SpeechConfig              `json:"speech"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	PromptsPath   string `json:"prompts_path"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LLMConfig selects the completion provider. Connection secrets come from the
// process environment and take precedence over the file; the service refuses
// to start without them.
type LLMConfig struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	BaseURL        string  `json:"base_url"`
	APIKey         string  `json:"api_key"`
	APIVersion     string  `json:"api_version"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
}

type SpeechConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	VoiceID  string `json:"voice_id"`
}

// Environment variable names carried over from the original deployment.
const (
	EnvAPIKey         = "GPT4_API_KEY"
	EnvAzureEndpoint  = "GPT4_AZURE_ENDPOINT"
	EnvAPIVersion     = "GPT4_API_VERSION"
	EnvDeploymentName = "GPT4_DEPLOYMENT_NAME"
)

const defaultAPIVersion = "2024-02-15"

// Load reads configuration from the provided path (defaults to config.json)
// and applies environment overrides for the LLM connection.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.BasicConfig.PromptsPath != "" && !filepath.IsAbs(cfg.BasicConfig.PromptsPath) {
		cfg.BasicConfig.PromptsPath = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.PromptsPath)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvAzureEndpoint); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvAPIVersion); v != "" {
		c.LLM.APIVersion = v
	}
	if v := os.Getenv(EnvDeploymentName); v != "" {
		c.LLM.Model = v
	}
	if c.LLM.APIVersion == "" {
		c.LLM.APIVersion = defaultAPIVersion
	}
}

func (c *Config) validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	provider := strings.TrimSpace(c.LLM.Provider)
	if provider == "" {
		return fmt.Errorf("llm provider must be configured")
	}
	switch provider {
	case "azure":
		if c.LLM.APIKey == "" || c.LLM.BaseURL == "" || c.LLM.Model == "" {
			return fmt.Errorf("missing %s, %s, or %s in environment", EnvAPIKey, EnvAzureEndpoint, EnvDeploymentName)
		}
	case "openai", "claude", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("missing %s in environment for provider %s", EnvAPIKey, provider)
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("llm model must be configured for provider %s", provider)
		}
	default:
		return fmt.Errorf("unsupported llm provider: %s", provider)
	}
	return nil
}
