package registry

import "sync"

// Registry maps caller-chosen aliases to host-assigned session identifiers.
// It is in-memory only and lives for the process lifetime; there is no
// removal and no TTL. A later Bind for the same alias overwrites the
// earlier one (last write wins).
type Registry struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		aliases: make(map[string]string),
	}
}

// Bind records sessionID under alias, replacing any existing binding.
func (r *Registry) Bind(alias, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = sessionID
}

// Resolve returns the session identifier bound to alias. The second
// return value is false when the alias was never bound.
func (r *Registry) Resolve(alias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.aliases[alias]
	return id, ok
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aliases)
}
