package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/di"
)

// Factory creates a pipeline instance, resolving its injected fields from sp.
type Factory func(sp di.ServiceProvider) (blueprint.Pipeline, error)

// StaticEntry is a pipeline type compiled into the binary.
type StaticEntry struct {
	// Fingerprint identifies the generated declarations the entry was
	// compiled from.
	Fingerprint string
	Factory     Factory
}

// StaticRegistry holds the pipeline types generated source registers from
// init functions.
type StaticRegistry struct {
	mu      sync.RWMutex
	entries map[string]StaticEntry
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{entries: make(map[string]StaticEntry)}
}

// Register adds a pipeline type. It panics if name is already registered.
func (r *StaticRegistry) Register(name, fingerprint string, factory Factory) {
	if factory == nil {
		panic("pipeline: Register " + name + " with nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		panic(fmt.Sprintf("pipeline: %s registered twice", name))
	}
	r.entries[name] = StaticEntry{Fingerprint: fingerprint, Factory: factory}
}

// Lookup returns the entry for name.
func (r *StaticRegistry) Lookup(name string) (StaticEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered type names, sorted.
func (r *StaticRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultStaticRegistry is the registry generated code registers with.
var DefaultStaticRegistry = NewStaticRegistry()

// RegisterStatic registers a generated pipeline type with
// DefaultStaticRegistry. Generated files call it from init.
func RegisterStatic(name, fingerprint string, factory Factory) {
	DefaultStaticRegistry.Register(name, fingerprint, factory)
}
