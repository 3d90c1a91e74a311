package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiOptions configures the Gemini adapter.
type GeminiOptions struct {
	APIKey       string
	Model        string
	ProbeTimeout time.Duration
	// ClientOptions are appended to the API key option (custom endpoint, HTTP client).
	ClientOptions []option.ClientOption
}

// GeminiProvider wraps a genai client and one generative model.
type GeminiProvider struct {
	opts GeminiOptions

	mu     sync.RWMutex
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiProvider(opts GeminiOptions) *GeminiProvider {
	return &GeminiProvider{opts: opts}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Initialize creates the client and checks it with a CountTokens round-trip.
func (p *GeminiProvider) Initialize(ctx context.Context) LivenessResult {
	if p.opts.APIKey == "" {
		return LivenessResult{Provider: ProviderGemini, Err: errors.New("missing api key")}
	}

	type session struct {
		client *genai.Client
		model  *genai.GenerativeModel
	}
	h := &handoff[session]{close: func(s session) { s.client.Close() }}
	res := probe(ctx, ProviderGemini, p.opts.ProbeTimeout, func(ctx context.Context) error {
		opts := append([]option.ClientOption{option.WithAPIKey(p.opts.APIKey)}, p.opts.ClientOptions...)
		c, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return err
		}
		m := c.GenerativeModel(p.opts.Model)
		if _, err := m.CountTokens(ctx, genai.Text("ping")); err != nil {
			c.Close()
			return err
		}
		if err := ctx.Err(); err != nil {
			c.Close()
			return err
		}
		if !h.offer(session{client: c, model: m}) {
			return errors.New("liveness check abandoned")
		}
		return nil
	})
	sess, ok := h.take()
	if !res.Live {
		if ok {
			sess.client.Close()
		}
		return res
	}
	client, model := sess.client, sess.model

	p.mu.Lock()
	p.client, p.model = client, model
	p.mu.Unlock()
	return res
}

func (p *GeminiProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()
	if model == nil {
		return "", unavailable(ProviderGemini)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", callFailure(ProviderGemini, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", callFailure(ProviderGemini, errors.New("no candidates returned"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", callFailure(ProviderGemini, errors.New("empty response"))
	}
	return sb.String(), nil
}

func (p *GeminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = nil
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
