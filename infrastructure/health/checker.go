// Package health runs named dependency checks for the health endpoint.
package health

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Status represents the health status of a service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc reports an unhealthy dependency by returning an error.
type CheckFunc func(ctx context.Context) error

// Checker manages health checks for a service.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// Register adds or replaces a named check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Check runs every registered check.
func (c *Checker) Check(ctx context.Context) (Status, map[string]string) {
	c.mu.RLock()
	names := slices.Sorted(maps.Keys(c.checks))
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	status := StatusHealthy
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			results[name] = "error: " + err.Error()
			status = StatusUnhealthy
			continue
		}
		results[name] = "ok"
	}
	return status, results
}
