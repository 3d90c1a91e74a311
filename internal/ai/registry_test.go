package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-memory Provider for registry and extractor tests.
type fakeProvider struct {
	name    string
	live    bool
	reply   string
	err     error
	block   bool
	calls   atomic.Int32
	closed  atomic.Bool
	mu      sync.Mutex
	prompts []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Initialize(ctx context.Context) LivenessResult {
	if !f.live {
		return LivenessResult{Provider: f.name, Err: errors.New("probe failed")}
	}
	return LivenessResult{Provider: f.name, Live: true}
}

func (f *fakeProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", callFailure(f.name, ctx.Err())
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) Close() error {
	f.closed.Store(true)
	return nil
}

func TestRegistry_RegisterLiveIsIdempotent(t *testing.T) {
	r := NewRegistry("", nil)
	r.RegisterLive("openai")
	r.RegisterLive("openai")
	r.RegisterLive("gemini")

	assert.Equal(t, []string{"openai", "gemini"}, r.OrderedCandidates())
}

func TestRegistry_OrderedCandidates(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		live      []string
		want      []string
	}{
		{"preferred first", "gemini", []string{"ollama", "openai", "gemini"}, []string{"gemini", "ollama", "openai"}},
		{"preferred already first", "ollama", []string{"ollama", "openai"}, []string{"ollama", "openai"}},
		{"preferred not live", "gemini", []string{"ollama", "openai"}, []string{"ollama", "openai"}},
		{"no preference", "", []string{"openai", "ollama"}, []string{"openai", "ollama"}},
		{"none live", "openai", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(tt.preferred, nil)
			for _, n := range tt.live {
				r.RegisterLive(n)
			}
			assert.Equal(t, tt.want, r.OrderedCandidates())
			assert.Equal(t, len(tt.live) > 0, r.IsEnabled())
		})
	}
}

func TestRegistry_InitializeAll(t *testing.T) {
	a := &fakeProvider{name: "ollama", live: false}
	b := &fakeProvider{name: "openai", live: true}
	c := &fakeProvider{name: "gemini", live: true}

	r := NewRegistry("gemini", nil)
	r.Register(a)
	r.Register(b)
	r.Register(c)

	results := r.InitializeAll(context.Background())

	require.Len(t, results, 3)
	assert.False(t, results[0].Live)
	assert.Error(t, results[0].Err)
	assert.True(t, results[1].Live)
	assert.Equal(t, []string{"gemini", "openai"}, r.OrderedCandidates())

	p, ok := r.Provider("openai")
	assert.True(t, ok)
	assert.Same(t, b, p)

	require.NoError(t, r.Close())
	assert.True(t, a.closed.Load())
	assert.True(t, c.closed.Load())
	assert.False(t, r.IsEnabled())
}

func TestProviderError(t *testing.T) {
	cause := errors.New("503")
	err := callFailure("openai", cause)

	assert.ErrorIs(t, err, ErrProviderCallFailure)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openai")

	assert.ErrorIs(t, unavailable("gemini"), ErrProviderUnavailable)
}

func TestProbe_Timeout(t *testing.T) {
	res := probe(context.Background(), "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.False(t, res.Live)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestProbe_Panic(t *testing.T) {
	res := probe(context.Background(), "bad", 0, func(context.Context) error {
		panic("boom")
	})
	assert.False(t, res.Live)
	assert.Error(t, res.Err)
}

func TestHandoff_LateOfferIsClosed(t *testing.T) {
	var closed []string
	h := &handoff[string]{close: func(s string) { closed = append(closed, s) }}

	_, ok := h.take()
	assert.False(t, ok)

	assert.False(t, h.offer("late client"))
	assert.Equal(t, []string{"late client"}, closed)
}

func TestHandoff_OfferBeforeTake(t *testing.T) {
	h := &handoff[string]{close: func(string) { t.Fatal("published value must not be closed") }}

	require.True(t, h.offer("client"))
	v, ok := h.take()
	assert.True(t, ok)
	assert.Equal(t, "client", v)
}

func TestLivenessCheck_LateResourceIsReleased(t *testing.T) {
	released := make(chan string, 1)
	h := &handoff[string]{close: func(s string) { released <- s }}
	finish := make(chan struct{})

	res := probe(context.Background(), "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-finish
		if !h.offer("client") {
			return errors.New("abandoned")
		}
		return nil
	})
	_, ok := h.take()
	close(finish)

	assert.False(t, res.Live)
	assert.False(t, ok)
	select {
	case got := <-released:
		assert.Equal(t, "client", got)
	case <-time.After(time.Second):
		t.Fatal("late client was not released")
	}
}
