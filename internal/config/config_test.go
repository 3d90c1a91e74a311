package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_YAMLAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
port: 9090
ai:
  default_provider: gemini
  enabled: [gemini, openai]
  invoke_timeout: 30s
  gemini:
    api_key: g-key
database:
  url: postgres://localhost/tax
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "gemini", cfg.AI.DefaultProvider)
	assert.Equal(t, 30*time.Second, cfg.AI.InvokeTimeout)
	assert.Equal(t, "postgres://localhost/tax", cfg.Database.URL)
	assert.True(t, cfg.AI.ProviderEnabled("gemini"))
	assert.False(t, cfg.AI.ProviderEnabled("ollama"))
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Gemini.Model)
	assert.Equal(t, 5*time.Second, cfg.AI.ProbeTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.NotZero(t, cfg.Port)
	assert.Equal(t, "http://localhost:11434", cfg.AI.Ollama.BaseURL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [oops"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv_Overrides(t *testing.T) {
	var cfg Config
	cfg.AI.OpenAI.Model = "from-yaml"
	err := applyEnv(&cfg, envMap(map[string]string{
		"PORT":                 "7000",
		"OPENAI_MODEL":         "gpt-4o",
		"AI_ENABLED_PROVIDERS": " Ollama , openai ,",
		"AI_INVOKE_TIMEOUT":    "45s",
		"MINIO_USE_SSL":        "true",
		"LOG_FORMAT":           "console",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "gpt-4o", cfg.AI.OpenAI.Model)
	assert.Equal(t, []string{"ollama", "openai"}, cfg.AI.Enabled)
	assert.Equal(t, 45*time.Second, cfg.AI.InvokeTimeout)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestApplyEnv_BadValues(t *testing.T) {
	var cfg Config
	assert.Error(t, applyEnv(&cfg, envMap(map[string]string{"PORT": "abc"})))
	assert.Error(t, applyEnv(&cfg, envMap(map[string]string{"AI_CACHE_TTL": "forever"})))
}
