// Package health runs named dependency checks for the /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
)

// Status is the outcome of one named check.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Check probes one dependency. Implementations should honor ctx and
// bound their own timeout; a hung check must not hang the endpoint.
type Check func(ctx context.Context) Status

// Registry holds named checks and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds or replaces a named check.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// CheckAll runs every registered check and reports overall health plus
// per-check statuses, sorted by name for stable output. An empty
// registry is healthy.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	checks := make([]Check, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, r.checks[name])
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(checks))
	for _, check := range checks {
		status := check(ctx)
		if !status.Healthy {
			healthy = false
		}
		statuses = append(statuses, status)
	}

	return healthy, statuses
}
