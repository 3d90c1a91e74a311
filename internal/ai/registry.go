package ai

import (
	"context"
	"sync"

	"github.com/facturaIA/tax-extraction-service/internal/logging"
)

// Registry tracks constructed adapters, which of them passed their liveness
// probe, and the preferred provider. It is written at startup and read on
// every extraction.
type Registry struct {
	mu        sync.RWMutex
	preferred string
	adapters  map[string]Provider
	order     []string // adapter registration order
	live      []string // live names in discovery order
	log       logging.Logger
}

// NewRegistry creates an empty registry. preferred may name a provider that is
// never registered; it is then ignored.
func NewRegistry(preferred string, log logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Registry{
		preferred: preferred,
		adapters:  make(map[string]Provider),
		log:       log.Named("registry"),
	}
}

// Register adds an adapter without marking it live.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.adapters[p.Name()] = p
}

// RegisterLive marks name as live. Registering the same name twice is a no-op.
func (r *Registry) RegisterLive(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.live {
		if n == name {
			return
		}
	}
	r.live = append(r.live, name)
}

// Preferred returns the configured preferred provider name.
func (r *Registry) Preferred() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preferred
}

// OrderedCandidates returns the live providers, preferred first when it is
// live, the rest in discovery order.
func (r *Registry) OrderedCandidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.live))
	preferredLive := false
	for _, n := range r.live {
		if n == r.preferred {
			preferredLive = true
			break
		}
	}
	if preferredLive {
		out = append(out, r.preferred)
	}
	for _, n := range r.live {
		if preferredLive && n == r.preferred {
			continue
		}
		out = append(out, n)
	}
	return out
}

// IsEnabled reports whether at least one provider is live.
func (r *Registry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live) > 0
}

// Provider returns the adapter registered under name.
func (r *Registry) Provider(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.adapters[name]
	return p, ok
}

// InitializeAll probes every registered adapter once, in registration order,
// and marks the live ones. Failed probes only exclude the provider.
func (r *Registry) InitializeAll(ctx context.Context) []LivenessResult {
	r.mu.RLock()
	adapters := make([]Provider, 0, len(r.order))
	for _, n := range r.order {
		adapters = append(adapters, r.adapters[n])
	}
	r.mu.RUnlock()

	results := make([]LivenessResult, 0, len(adapters))
	for _, p := range adapters {
		res := p.Initialize(ctx)
		res.Provider = p.Name()
		results = append(results, res)
		if res.Live {
			r.RegisterLive(p.Name())
			r.log.Info("provider.live", logging.String("provider", p.Name()), logging.Duration("latency", res.Latency))
			continue
		}
		r.log.Warn("provider.unavailable", logging.String("provider", p.Name()), logging.Err(res.Err))
	}
	return results
}

// Close releases every adapter's client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, n := range r.order {
		if err := r.adapters[n].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.live = nil
	return firstErr
}
