package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status values reported by the checker.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status   string  `json:"status"`
	Message  string  `json:"message,omitempty"`
	Duration float64 `json:"duration_ms"`
}

// HealthStatus is the body of the liveness and readiness endpoints.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Ready reports whether every check passed.
func (s HealthStatus) Ready() bool {
	return s.Status == StatusOK || s.Status == StatusReady
}

// Checker runs named readiness checks such as "policy_tree" or "audit_sink".
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	checkTimeout time.Duration
}

// New creates a new health checker with the specified check timeout.
// If timeout is 0, defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck registers a check, replacing any check with the same name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// ListChecks returns the sorted names of the registered checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is serving.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	return HealthStatus{Status: StatusOK, Timestamp: time.Now()}
}

// CheckReadiness runs every registered check concurrently.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex

	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.runCheck(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Status != StatusOK {
			status = StatusNotReady
		}
	}

	return HealthStatus{Status: status, Checks: results, Timestamp: time.Now()}
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	result := CheckResult{
		Status:   StatusOK,
		Duration: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
