package integration

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an Integration bound to one service configuration.
type Factory func(cfg Config) (Integration, error)

// Registry maps integration keys to factories. Registration is explicit and
// conflict-checked at startup; there is no implicit auto-registration and a
// duplicate key is an error, never a silent overwrite.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under key. Duplicate keys are rejected.
func (r *Registry) Register(key string, factory Factory) error {
	if key == "" {
		return fmt.Errorf("integration key is required")
	}
	if factory == nil {
		return fmt.Errorf("integration %s: factory is required", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("integration %s already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// MustRegister is Register for startup wiring where a conflict is a
// programming error.
func (r *Registry) MustRegister(key string, factory Factory) {
	if err := r.Register(key, factory); err != nil {
		panic(err)
	}
}

// Resolve builds the integration for cfg using the factory registered under
// cfg.Integration.
func (r *Registry) Resolve(cfg Config) (Integration, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Integration]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("integration %s is not registered", cfg.Integration)
	}
	return factory(cfg)
}

// List returns the registered keys sorted, for configuration UIs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
