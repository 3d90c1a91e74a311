// Package config loads the service configuration from an optional YAML file,
// an optional .env file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/facturaIA/tax-extraction-service/internal/logging"
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	AI       AIConfig       `yaml:"ai"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      logging.Config `yaml:"log"`
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`

	// Preferred provider, tried first when live.
	DefaultProvider string `yaml:"default_provider"`
	// Providers to construct at startup; empty means all of them.
	Enabled []string `yaml:"enabled"`

	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	InvokeTimeout    time.Duration `yaml:"invoke_timeout"` // 0 disables the per-call bound
	CacheTTL         time.Duration `yaml:"cache_ttl"`      // 0 disables memoisation
	MaxDocumentChars int           `yaml:"max_document_chars"`
}

// OpenAIConfig for OpenAI or any compatible endpoint
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// AuthConfig holds the JWT signing settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DatabaseConfig holds the Postgres connection. Empty URL runs without persistence.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// StorageConfig holds the MinIO connection. Empty endpoint runs without object storage.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Load reads path (missing file is fine), then .env, then environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// .env is optional; real environment wins over it.
	_ = godotenv.Load()

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if port := getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Port = p
	}
	setString(&cfg.Host, getenv("HOST"))

	setString(&cfg.AI.OpenAI.APIKey, getenv("OPENAI_API_KEY"))
	setString(&cfg.AI.OpenAI.BaseURL, getenv("OPENAI_BASE_URL"))
	setString(&cfg.AI.OpenAI.Model, getenv("OPENAI_MODEL"))
	setString(&cfg.AI.Gemini.APIKey, getenv("GEMINI_API_KEY"))
	setString(&cfg.AI.Gemini.Model, getenv("GEMINI_MODEL"))
	setString(&cfg.AI.Ollama.BaseURL, getenv("OLLAMA_BASE_URL"))
	setString(&cfg.AI.Ollama.Model, getenv("OLLAMA_MODEL"))
	setString(&cfg.AI.DefaultProvider, getenv("AI_PROVIDER"))
	if enabled := getenv("AI_ENABLED_PROVIDERS"); enabled != "" {
		cfg.AI.Enabled = splitList(enabled)
	}
	for key, dst := range map[string]*time.Duration{
		"AI_PROBE_TIMEOUT":  &cfg.AI.ProbeTimeout,
		"AI_INVOKE_TIMEOUT": &cfg.AI.InvokeTimeout,
		"AI_CACHE_TTL":      &cfg.AI.CacheTTL,
	} {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}

	setString(&cfg.Auth.JWTSecret, getenv("JWT_SECRET"))
	setString(&cfg.Database.URL, getenv("DATABASE_URL"))

	setString(&cfg.Storage.Endpoint, getenv("MINIO_ENDPOINT"))
	setString(&cfg.Storage.AccessKey, getenv("MINIO_ACCESS_KEY"))
	setString(&cfg.Storage.SecretKey, getenv("MINIO_SECRET_KEY"))
	setString(&cfg.Storage.Bucket, getenv("MINIO_BUCKET"))
	if v := getenv("MINIO_USE_SSL"); v != "" {
		cfg.Storage.UseSSL = v == "true"
	}

	setString(&cfg.Log.Level, getenv("LOG_LEVEL"))
	setString(&cfg.Log.Format, getenv("LOG_FORMAT"))
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8081
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if c.AI.Gemini.Model == "" {
		c.AI.Gemini.Model = "gemini-1.5-flash"
	}
	if c.AI.Ollama.BaseURL == "" {
		c.AI.Ollama.BaseURL = "http://localhost:11434"
	}
	if c.AI.Ollama.Model == "" {
		c.AI.Ollama.Model = "llama3"
	}
	if c.AI.Ollama.ProbeTimeout == 0 {
		c.AI.Ollama.ProbeTimeout = 10 * time.Second
	}
	if c.AI.ProbeTimeout == 0 {
		c.AI.ProbeTimeout = 5 * time.Second
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "tax-documents"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// ProviderEnabled reports whether name should be constructed at startup.
func (a AIConfig) ProviderEnabled(name string) bool {
	if len(a.Enabled) == 0 {
		return true
	}
	for _, n := range a.Enabled {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
