package backend

import (
	"fmt"
	"sync"
)

// Factory creates a Backend from a config map.
type Factory func(config map[string]string) (Backend, error)

// Registry holds named backend factories. Adapters register themselves in
// init(); the boundary layer selects one by name at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory to the registry.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named backend.
func (r *Registry) Create(name string, config map[string]string) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return factory(config)
}

// Has returns true if the named factory exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered factory names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Default is the global backend registry.
var Default = NewRegistry()
