package ai

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OllamaOptions configures the local-model adapter.
type OllamaOptions struct {
	BaseURL string // e.g. http://localhost:11434
	Model   string
	// ProbeTimeout is usually longer than for hosted APIs since the first
	// request may load the model.
	ProbeTimeout time.Duration
}

// NewOllamaProvider returns an adapter for Ollama's OpenAI-compatible endpoint.
// The liveness probe lists installed models.
func NewOllamaProvider(opts OllamaOptions) *OpenAIProvider {
	base := strings.TrimRight(opts.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	p := &OpenAIProvider{
		name: ProviderOllama,
		opts: OpenAIOptions{
			APIKey:       "ollama",
			BaseURL:      base,
			Model:        opts.Model,
			ProbeTimeout: opts.ProbeTimeout,
		},
	}
	p.probe = func(ctx context.Context, c *openai.Client) error {
		_, err := c.ListModels(ctx)
		return err
	}
	return p
}
