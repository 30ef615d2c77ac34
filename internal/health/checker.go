// Package health aggregates component checks into one status report for the
// /health endpoint and the serve command's startup probe.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of a component or of the whole service.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
	StateDisabled  State = "disabled"
)

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name     string         `json:"name"`
	Status   State          `json:"status"`
	Critical bool           `json:"critical"`
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Status is the aggregated report.
type Status struct {
	Overall    State             `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components"`
}

// Check probes one component.
type Check struct {
	Name string
	// Critical components make the service unhealthy when they fail; the
	// others only degrade it.
	Critical bool
	// Enabled, when set and false, reports the component as disabled without probing.
	Enabled func() bool
	Probe   func(ctx context.Context) (map[string]any, error)
}

// Checker runs checks concurrently with a per-check timeout.
type Checker struct {
	version string
	timeout time.Duration
	started time.Time
	logger  *logrus.Logger

	mu     sync.RWMutex
	checks []Check
}

// NewChecker creates a checker. A zero timeout defaults to five seconds.
func NewChecker(version string, timeout time.Duration, logger *logrus.Logger) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		version: version,
		timeout: timeout,
		started: time.Now(),
		logger:  logger,
	}
}

// Register adds a check.
func (c *Checker) Register(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run executes every registered check.
func (c *Checker) Run(ctx context.Context) Status {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = c.runOne(ctx, check)
		}(i, check)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := StateHealthy
	for _, r := range results {
		if r.Status != StateUnhealthy {
			continue
		}
		if r.Critical {
			overall = StateUnhealthy
			break
		}
		overall = StateDegraded
	}

	return Status{
		Overall:    overall,
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: results,
	}
}

func (c *Checker) runOne(ctx context.Context, check Check) (result ComponentHealth) {
	result = ComponentHealth{Name: check.Name, Critical: check.Critical}
	if check.Enabled != nil && !check.Enabled() {
		result.Status = StateDisabled
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Status = StateUnhealthy
			result.Message = fmt.Sprintf("check panicked: %v", r)
		}
		result.Duration = time.Since(start)
		if result.Status == StateUnhealthy {
			c.logger.WithFields(logrus.Fields{
				"component": check.Name,
				"critical":  check.Critical,
				"message":   result.Message,
			}).Warn("Health check failed")
		}
	}()

	metadata, err := check.Probe(ctx)
	result.Metadata = metadata
	if err != nil {
		result.Status = StateUnhealthy
		result.Message = err.Error()
		return result
	}
	result.Status = StateHealthy
	return result
}
