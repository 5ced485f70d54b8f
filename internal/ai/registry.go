package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ProviderFactory builds a provider. It returns *MissingCredentialError when
// the provider's secret is not configured.
type ProviderFactory func(ctx context.Context) (Provider, error)

// Registry is the lookup table from provider name to adapter factory, plus the
// fallback candidates tried after each primary.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	fallbacks map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		fallbacks: make(map[string][]string),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// SetFallbacks sets the ordered fallback candidates for a primary provider.
func (r *Registry) SetFallbacks(primary string, fallbacks ...string) {
	primary = normalize(primary)
	out := make([]string, 0, len(fallbacks))
	for _, f := range fallbacks {
		out = append(out, normalize(f))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[primary] = out
}

func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	name = normalize(name)
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return f(ctx)
}

// Chain builds the primary provider followed by every fallback whose
// credential is configured. Errors building the primary are returned as is;
// fallbacks that cannot be built are skipped.
func (r *Registry) Chain(ctx context.Context, primary string) (*Chain, error) {
	p, err := r.Get(ctx, primary)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	names := append([]string(nil), r.fallbacks[normalize(primary)]...)
	r.mu.RUnlock()

	steps := []Provider{p}
	for _, name := range names {
		fb, err := r.Get(ctx, name)
		if err != nil {
			continue
		}
		steps = append(steps, fb)
	}
	return NewChain(steps...), nil
}
