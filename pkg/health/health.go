// Package health tracks the status of the server's dependencies for the
// /health endpoint and the gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/resilience"

	"golang.org/x/sync/errgroup"
)

// Status of a component or of the whole system
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Component is the last observed state of one check
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LatencyMS   int64     `json:"latencyMs"`
	LastChecked time.Time `json:"lastChecked"`
}

// Check probes one dependency
type Check func(ctx context.Context) (Status, string, error)

type check struct {
	name     string
	critical bool
	fn       Check
}

// Checker runs registered checks and keeps their latest results
type Checker struct {
	log     *logger.Logger
	period  time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	checks []check
	state  map[string]Component
}

// NewChecker creates a checker that Start refreshes every period
func NewChecker(log *logger.Logger, period time.Duration) *Checker {
	c := &Checker{
		log:     log,
		period:  period,
		timeout: 5 * time.Second,
		state:   make(map[string]Component),
	}
	c.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})
	return c
}

// RegisterCheck adds or replaces a check. A critical check that is down makes
// the system unhealthy; until its first run it counts as down.
func (c *Checker) RegisterCheck(name string, critical bool, fn Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := check{name: name, critical: critical, fn: fn}
	replaced := false
	for i := range c.checks {
		if c.checks[i].name == name {
			c.checks[i], replaced = next, true
		}
	}
	if !replaced {
		c.checks = append(c.checks, next)
	}
	c.state[name] = Component{Name: name, Status: StatusDown, Critical: critical, Description: "Not checked yet"}
}

// RunChecks runs every check concurrently, each bounded by the check timeout
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	var g errgroup.Group
	for _, ch := range checks {
		g.Go(func() error {
			c.record(ch, c.run(ctx, ch))
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Checker) run(ctx context.Context, ch check) (comp Component) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	comp = Component{Name: ch.name, Critical: ch.critical}
	defer func() {
		if r := recover(); r != nil {
			comp.Status, comp.Description, comp.Error = StatusDown, "Check panicked", fmt.Sprint(r)
		}
		comp.LatencyMS = time.Since(start).Milliseconds()
		comp.LastChecked = time.Now()
	}()

	status, desc, err := ch.fn(ctx)
	comp.Status, comp.Description = status, desc
	if err != nil {
		comp.Error = err.Error()
	}
	return comp
}

func (c *Checker) record(ch check, comp Component) {
	c.mu.Lock()
	prev, seen := c.state[ch.name]
	c.state[ch.name] = comp
	c.mu.Unlock()

	if seen && prev.Status == comp.Status && !prev.LastChecked.IsZero() {
		return
	}
	attrs := []any{"component", ch.name, "status", string(comp.Status), "critical", ch.critical}
	if comp.Error != "" {
		attrs = append(attrs, "error", comp.Error)
	}
	if comp.Status == StatusUp {
		c.log.Info("Health status changed", attrs...)
	} else {
		c.log.Warn("Health status changed", attrs...)
	}
}

// Start runs checks now and then every period until ctx ends
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)
		t := time.NewTicker(c.period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns the latest component states by name
func (c *Checker) GetStatus() map[string]Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Component, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

// Overall is down when a critical component is down, degraded when any
// component is not up, and up otherwise.
func (c *Checker) Overall() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	overall := StatusUp
	for _, comp := range c.state {
		switch {
		case comp.Critical && comp.Status == StatusDown:
			return StatusDown
		case comp.Status != StatusUp:
			overall = StatusDegraded
		}
	}
	return overall
}

// IsSystemHealthy reports whether every critical component is reachable
func (c *Checker) IsSystemHealthy() bool {
	return c.Overall() != StatusDown
}

// RegisterDatabaseCheck registers a critical database ping
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterPingCheck registers a non-critical dependency ping
func (c *Checker) RegisterPingCheck(name string, ping func(ctx context.Context) error) {
	c.RegisterCheck(name, false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, name + " unreachable", err
		}
		return StatusUp, name + " reachable", nil
	})
}

// RegisterBreakerCheck reports a circuit breaker as degraded while it is not closed.
func (c *Checker) RegisterBreakerCheck(name string, cb *resilience.CircuitBreaker) {
	c.RegisterCheck(name, false, func(context.Context) (Status, string, error) {
		snap := cb.Snapshot()
		switch snap.State {
		case resilience.StateClosed:
			return StatusUp, "Circuit closed", nil
		case resilience.StateOpen:
			msg := "Circuit open until " + snap.RetryAt.UTC().Format(time.RFC3339)
			if snap.LastError != "" {
				return StatusDegraded, msg, errors.New(snap.LastError)
			}
			return StatusDegraded, msg, nil
		default:
			return StatusDegraded, "Circuit " + string(snap.State), nil
		}
	})
}
