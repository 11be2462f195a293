// Package health runs named dependency checks for readiness probes.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Checker runs a fixed set of checks concurrently, each bounded by a timeout.
type Checker struct {
	checks  map[string]Check
	timeout time.Duration
}

// New returns a Checker; timeout defaults to two seconds.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{checks: make(map[string]Check), timeout: timeout}
}

// Add registers a check under name. Not safe for use after Run has started.
func (c *Checker) Add(name string, fn Check) *Checker {
	c.checks[name] = fn
	return c
}

// Names returns registered check names in sorted order.
func (c *Checker) Names() []string {
	out := make([]string, 0, len(c.checks))
	for n := range c.checks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Run executes every check and returns the failures by name.
func (c *Checker) Run(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		fail = make(map[string]error)
	)
	for name, fn := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				fail[name] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return fail
}
