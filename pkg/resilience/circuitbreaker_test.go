package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-chat-app/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBreaker(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(cfg, logger.Discard())
	cb.now = clk.Now
	return cb, clk
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newBreaker(t, CircuitBreakerConfig{Name: "ai", FailureThreshold: 2, RetryTimeout: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	snap := cb.Snapshot()
	assert.Equal(t, uint64(2), snap.Requests)
	assert.Equal(t, uint64(2), snap.Failures)
	assert.Equal(t, uint64(1), snap.Rejected)
	assert.Equal(t, uint64(1), snap.Opened)
	assert.Equal(t, errUpstream.Error(), snap.LastError)
	assert.False(t, snap.RetryAt.IsZero())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newBreaker(t, CircuitBreakerConfig{Name: "ai", FailureThreshold: 2, RetryTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	var transitions []CircuitBreakerState
	cb, clk := newBreaker(t, CircuitBreakerConfig{
		Name:             "ai",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		RetryTimeout:     time.Minute,
		OnStateChange: func(_ string, _, to CircuitBreakerState) {
			transitions = append(transitions, to)
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())

	clk.Advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Equal(t, []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, clk := newBreaker(t, CircuitBreakerConfig{Name: "ai", FailureThreshold: 3, SuccessThreshold: 1, RetryTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	clk.Advance(time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestHalfOpenAllowsOneProbeAtATime(t *testing.T) {
	cb, clk := newBreaker(t, CircuitBreakerConfig{Name: "ai", FailureThreshold: 1, SuccessThreshold: 1, RetryTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clk.Advance(time.Minute)

	inner := make(chan error, 1)
	err := cb.Execute(ctx, func(ctx context.Context) error {
		inner <- cb.Execute(ctx, succeed)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, ErrCircuitOpen)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCanceledCallsDoNotTrip(t *testing.T) {
	cb, _ := newBreaker(t, CircuitBreakerConfig{Name: "ai", FailureThreshold: 1, RetryTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.Snapshot().Failures)
}

func TestCustomFailureClassifier(t *testing.T) {
	errBadRequest := errors.New("bad request")
	cb, _ := newBreaker(t, CircuitBreakerConfig{
		Name:             "ai",
		FailureThreshold: 1,
		RetryTimeout:     time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errBadRequest) },
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return errBadRequest })
	assert.Equal(t, StateClosed, cb.GetState())
}
