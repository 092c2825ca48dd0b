package job

import (
	"context"
	"sort"
	"sync"
)

// HandlerFunc runs a job from its raw JSON payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

type entry struct {
	handler HandlerFunc
	opts    Options
}

// Registry maps job names to handlers and their default options.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RegisterDefinition adds def to r, replacing any earlier definition with
// the same name. It is a function rather than a method because methods
// cannot take type parameters.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = entry{handler: def.raw(), opts: def.Opts}
}

// Get returns the handler for the given job name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.handler, ok
}

// Options returns the default options a definition was registered with.
func (r *Registry) Options(name string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.opts, ok
}

// Names returns all registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
