package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-chat-app/backend/pkg/logger"
)

// ErrCircuitOpen is returned by Execute while the breaker short-circuits calls.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint
	// SuccessThreshold is the number of half-open probes that must succeed
	// before the circuit closes again.
	SuccessThreshold uint
	RetryTimeout     time.Duration
	// IsFailure decides which errors count against the circuit. Defaults to
	// every error except the caller giving up (context.Canceled).
	IsFailure func(error) bool
	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     60 * time.Second,
	}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Snapshot is a point-in-time view of a breaker
type Snapshot struct {
	Name        string
	State       CircuitBreakerState
	Requests    uint64
	Failures    uint64
	Rejected    uint64
	Opened      uint64
	LastFailure time.Time
	LastError   string
	RetryAt     time.Time
	Consecutive uint
}

// CircuitBreaker guards calls to a flaky dependency. After FailureThreshold
// consecutive failures it rejects calls for RetryTimeout, then lets probes
// through one at a time until SuccessThreshold of them succeed.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log *logger.Logger
	now func() time.Time

	mu         sync.Mutex
	state      CircuitBreakerState
	failures   uint
	successes  uint
	probing    bool
	retryAt    time.Time
	stats      Snapshot
	transition []func()
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = countsAsFailure
	}
	if log == nil {
		log = logger.Discard()
	}
	return &CircuitBreaker{
		cfg:   config,
		log:   log,
		now:   time.Now,
		state: StateClosed,
		stats: Snapshot{Name: config.Name},
	}
}

// Execute runs fn unless the circuit is open. fn receives ctx unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.acquire(); err != nil {
		cb.log.Warn("AI provider circuit rejecting call", "name", cb.cfg.Name)
		return err
	}

	started := cb.now()
	err := fn(ctx)
	cb.release(err)

	if err != nil {
		cb.log.Warn("Call through circuit failed",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", cb.now().Sub(started).String(),
		)
	}
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.flush()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.retryAt) {
			cb.stats.Rejected++
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.successes = 0
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.stats.Rejected++
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.stats.Requests++
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.flush()
	defer cb.mu.Unlock()

	halfOpen := cb.state == StateHalfOpen
	cb.probing = false

	if err != nil && cb.cfg.IsFailure(err) {
		cb.stats.Failures++
		cb.stats.LastFailure = cb.now()
		cb.stats.LastError = err.Error()
		cb.failures++
		if halfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.open()
		}
		return
	}
	if err != nil {
		// ignored errors leave the counters alone
		return
	}

	cb.failures = 0
	if halfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.retryAt = cb.now().Add(cb.cfg.RetryTimeout)
	cb.stats.Opened++
	cb.setState(StateOpen)
	cb.log.Info("AI provider circuit opened",
		"name", cb.cfg.Name,
		"failures", cb.failures,
		"retry_at", cb.retryAt.Format(time.RFC3339),
	)
}

// setState must be called with mu held; the hook runs in flush.
func (cb *CircuitBreaker) setState(to CircuitBreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
		cb.successes = 0
		cb.log.Info("AI provider circuit closed", "name", cb.cfg.Name)
	}
	if hook := cb.cfg.OnStateChange; hook != nil {
		name := cb.cfg.Name
		cb.transition = append(cb.transition, func() { hook(name, from, to) })
	}
}

func (cb *CircuitBreaker) flush() {
	cb.mu.Lock()
	pending := cb.transition
	cb.transition = nil
	cb.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's name
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// Snapshot returns the breaker's counters
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	s.Consecutive = cb.failures
	if cb.state == StateOpen {
		s.RetryAt = cb.retryAt
	}
	return s
}
