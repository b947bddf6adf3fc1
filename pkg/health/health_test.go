package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseDownIsUnhealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return errors.New("refused") })

	c.RunChecks(context.Background())

	assert.False(t, c.IsSystemHealthy())
	status := c.GetStatus()
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "refused", status["database"].Error)
	assert.Equal(t, StatusUp, status["self"].Status)
}

func TestNonCriticalFailuresKeepSystemHealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterPingCheck("redis", func(context.Context) error { return errors.New("timeout") })

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "ai", FailureThreshold: 1, SuccessThreshold: 1, RetryTimeout: time.Hour,
	}, logger.Discard())
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	c.RegisterBreakerCheck("ai-provider", cb)

	c.RunChecks(context.Background())

	assert.True(t, c.IsSystemHealthy())
	status := c.GetStatus()
	assert.Equal(t, StatusDegraded, status["redis"].Status)
	assert.Equal(t, StatusDegraded, status["ai-provider"].Status)
	assert.Contains(t, status["ai-provider"].Description, "Circuit open until")
	assert.Equal(t, "x", status["ai-provider"].Error)
}

func TestOverallStatus(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RunChecks(context.Background())
	assert.Equal(t, StatusUp, c.Overall())

	c.RegisterPingCheck("redis", func(context.Context) error { return errors.New("timeout") })
	c.RunChecks(context.Background())
	assert.Equal(t, StatusDegraded, c.Overall())
	assert.True(t, c.IsSystemHealthy())
}

func TestUncheckedCriticalComponentIsDown(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	assert.Equal(t, StatusDown, c.Overall())
}

func TestPanickingCheckIsDown(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterCheck("flaky", true, func(context.Context) (Status, string, error) { panic("boom") })

	c.RunChecks(context.Background())

	comp := c.GetStatus()["flaky"]
	assert.Equal(t, StatusDown, comp.Status)
	assert.Equal(t, "boom", comp.Error)
	assert.False(t, comp.LastChecked.IsZero())
}

func TestChecksRunConcurrently(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	slow := func(context.Context) error { time.Sleep(100 * time.Millisecond); return nil }
	c.RegisterPingCheck("a", slow)
	c.RegisterPingCheck("b", slow)
	c.RegisterPingCheck("c", slow)

	start := time.Now()
	c.RunChecks(context.Background())
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}
