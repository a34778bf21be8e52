package providers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/petal-labs/relay/core"
)

// Registry maps model identifiers to cached Provider instances. Creation is
// lazy and memoized: the same model identifier yields the same instance
// until ClearCache discards them (credential rotation, tests). Registration
// order decides ties: the first config claiming a model wins.
type Registry struct {
	mu      sync.Mutex
	configs []Config
	cache   map[string]*Provider
	opts    []Option
}

// NewRegistry returns a registry with the built-in providers registered.
// The options are applied to every provider the registry creates.
func NewRegistry(opts ...Option) *Registry {
	r := NewEmptyRegistry(opts...)
	r.Add(KimiConfig())
	r.Add(DeepSeekConfig())
	return r
}

// NewEmptyRegistry returns a registry with no providers registered.
func NewEmptyRegistry(opts ...Option) *Registry {
	return &Registry{
		cache: make(map[string]*Provider),
		opts:  opts,
	}
}

// Add registers a provider config.
func (r *Registry) Add(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
}

// Resolve returns the provider responsible for a model identifier, creating
// and caching the instance on first use. It fails with ErrUnsupportedModel
// when no registered config claims the identifier.
func (r *Registry) Resolve(modelID string) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[modelID]; ok {
		return p, nil
	}

	for _, cfg := range r.configs {
		if cfg.matches(modelID) {
			p := New(cfg, r.opts...)
			r.cache[modelID] = p
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: %q (registered providers: %s)",
		core.ErrUnsupportedModel, modelID, strings.Join(r.names(), ", "))
}

// ClearCache discards all cached provider instances. Subsequent Resolve
// calls create fresh ones.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Provider)
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, len(r.configs))
	for i, cfg := range r.configs {
		names[i] = cfg.Name
	}
	return names
}
