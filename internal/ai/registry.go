package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func() (Provider, error)

// Registry builds LLM providers by name. Instances are created once and
// reused.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	built     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		built:     make(map[string]Provider),
	}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.built, name)
}

func (r *Registry) Get(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	p, ok := r.built[name]
	f, known := r.factories[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !known {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}

	p, err := f()
	if err != nil {
		return nil, fmt.Errorf("build ai provider %s: %w", name, err)
	}
	r.mu.Lock()
	r.built[name] = p
	r.mu.Unlock()
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
