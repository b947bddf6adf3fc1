package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics are the chat service instruments
type Metrics struct {
	messages     metric.Int64Counter
	aiFailures   metric.Int64Counter
	aiLatency    metric.Float64Histogram
	cacheLookups metric.Int64Counter
	retries      metric.Int64Counter
	breaker      metric.Int64Counter
}

// NewMetrics registers the instruments on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("ai-chat-app/backend/chat")

	messages, err := meter.Int64Counter("chat_messages_persisted",
		metric.WithDescription("Messages written to conversation history"))
	if err != nil {
		return nil, err
	}
	aiFailures, err := meter.Int64Counter("chat_ai_failures",
		metric.WithDescription("Replies replaced by the fallback text"))
	if err != nil {
		return nil, err
	}
	aiLatency, err := meter.Float64Histogram("chat_ai_generation_ms",
		metric.WithDescription("AI reply generation time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	cacheLookups, err := meter.Int64Counter("chat_session_cache_lookups",
		metric.WithDescription("History reads by session cache outcome"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("chat_send_retries",
		metric.WithDescription("Sends flagged as client retries"))
	if err != nil {
		return nil, err
	}
	breaker, err := meter.Int64Counter("chat_ai_circuit_transitions",
		metric.WithDescription("AI provider circuit breaker state changes"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		messages:     messages,
		aiFailures:   aiFailures,
		aiLatency:    aiLatency,
		cacheLookups: cacheLookups,
		retries:      retries,
		breaker:      breaker,
	}, nil
}

// NoopMetrics records nothing
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) MessagesPersisted(ctx context.Context, role string, n int) {
	m.messages.Add(ctx, int64(n), metric.WithAttributes(attribute.String("role", role)))
}

func (m *Metrics) AIGeneration(ctx context.Context, elapsed time.Duration, failed bool) {
	m.aiLatency.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.Bool("failed", failed)))
	if failed {
		m.aiFailures.Add(ctx, 1)
	}
}

func (m *Metrics) CacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) Retry(ctx context.Context) {
	m.retries.Add(ctx, 1)
}

// BreakerTransition counts a circuit state change by target state
func (m *Metrics) BreakerTransition(ctx context.Context, name, to string) {
	m.breaker.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name), attribute.String("state", to)))
}
