package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Provider names recognised by the registry and config.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Error kinds returned by Provider.Invoke.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderCallFailure = errors.New("provider call failed")
)

// ProviderError tags an invoke failure with the provider and its kind.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the error kind so callers can use errors.Is(err, ErrProviderCallFailure).
func (e *ProviderError) Is(target error) bool { return target == e.Kind }

func unavailable(provider string) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderUnavailable}
}

func callFailure(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderCallFailure, Err: err}
}

// LivenessResult reports the outcome of a provider's startup probe.
type LivenessResult struct {
	Provider string
	Live     bool
	Latency  time.Duration
	Err      error
}

// Provider is a text-generation backend. Initialize never fails outwardly;
// Invoke performs exactly one round-trip and never retries.
type Provider interface {
	Name() string
	Initialize(ctx context.Context) LivenessResult
	Invoke(ctx context.Context, prompt string) (string, error)
	Close() error
}

// probe runs fn under timeout and converts the outcome into a LivenessResult.
func probe(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) LivenessResult {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("probe panic: %v", r)
			}
		}()
		errCh <- fn(ctx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return LivenessResult{Provider: name, Live: err == nil, Latency: time.Since(start), Err: err}
}

// handoff passes a resource built inside a probe goroutine back to the caller.
// Once the caller has taken its answer, a late offer is closed instead of kept.
type handoff[T any] struct {
	mu        sync.Mutex
	val       T
	set       bool
	abandoned bool
	close     func(T)
}

// offer publishes v, or closes it and reports false when the caller has left.
func (h *handoff[T]) offer(v T) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.abandoned {
		h.close(v)
		return false
	}
	h.val, h.set = v, true
	return true
}

// take returns the published value, if any, and refuses later offers.
func (h *handoff[T]) take() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abandoned = true
	return h.val, h.set
}
