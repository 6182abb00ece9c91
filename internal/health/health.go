// Package health aggregates subsystem probes for the readiness endpoint.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout bounds a single probe so one stuck subsystem cannot hold
// the whole health endpoint.
const checkTimeout = 5 * time.Second

// Status is the reported state of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Check probes one subsystem. A nil error means healthy; the detail string
// is informational either way (e.g. "in-memory", "partial snapshot").
type Check func(ctx context.Context) (detail string, err error)

// Registry holds named probes and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	checks map[string]Check
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds a named probe. Registering the same name twice replaces the
// earlier probe but keeps its position.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; !exists {
		r.order = append(r.order, name)
	}
	r.checks[name] = check
}

// CheckAll runs every probe in registration order and reports the aggregate
// health plus per-subsystem statuses. Each probe gets its own timeout.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	checks := make(map[string]Check, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, 0, len(names))

	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		detail, err := checks[name](probeCtx)
		cancel()

		st := Status{Name: name, Healthy: err == nil, Detail: detail}
		if err != nil {
			healthy = false
			if st.Detail == "" {
				st.Detail = err.Error()
			}
		}
		statuses = append(statuses, st)
	}

	return healthy, statuses
}
