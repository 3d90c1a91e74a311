package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAI (or OpenAI-compatible) adapter.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	ProbeTimeout time.Duration
	Temperature  float32
}

// OpenAIProvider talks to the chat completions API.
type OpenAIProvider struct {
	name  string
	opts  OpenAIOptions
	probe func(ctx context.Context, c *openai.Client) error

	mu     sync.RWMutex
	client *openai.Client
}

// NewOpenAIProvider creates the hosted OpenAI adapter. The liveness probe is a
// one-token completion.
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	p := &OpenAIProvider{name: ProviderOpenAI, opts: opts}
	p.probe = func(ctx context.Context, c *openai.Client) error {
		_, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     opts.Model,
			MaxTokens: 1,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: "ping"},
			},
		})
		return err
	}
	return p
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Initialize(ctx context.Context) LivenessResult {
	if p.opts.APIKey == "" && p.name == ProviderOpenAI {
		return LivenessResult{Provider: p.name, Err: errors.New("missing api key")}
	}
	cfg := openai.DefaultConfig(p.opts.APIKey)
	if p.opts.BaseURL != "" {
		cfg.BaseURL = p.opts.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	res := probe(ctx, p.name, p.opts.ProbeTimeout, func(ctx context.Context) error {
		return p.probe(ctx, client)
	})
	if res.Live {
		p.mu.Lock()
		p.client = client
		p.mu.Unlock()
	}
	return res
}

func (p *OpenAIProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return "", unavailable(p.name)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.opts.Model,
		Temperature: p.opts.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", callFailure(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", callFailure(p.name, errors.New("no choices returned"))
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", callFailure(p.name, errors.New("empty response"))
	}
	return text, nil
}

func (p *OpenAIProvider) Close() error {
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
	return nil
}
