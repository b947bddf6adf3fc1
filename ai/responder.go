// Package ai produces assistant replies through an OpenAI-compatible chat
// completion endpoint (Gemini by default).
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/resilience"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FallbackReply is stored as the assistant's answer whenever generation fails.
const FallbackReply = "I apologize, but I'm having trouble processing your request right now. Please try again in a moment."

// ProbePrompt is sent by the provider health check
const ProbePrompt = "Hello, can you hear me?"

// ServiceName identifies the provider in health reports
const ServiceName = "gemini"

var ErrEmptyResponse = errors.New("ai: provider returned no candidates")

// CompletionClient is the subset of *openai.Client the responder needs
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Responder generates a reply to userMessage given the recent conversation
type Responder interface {
	Generate(ctx context.Context, userMessage string, history []models.Message) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// Config tunes generation
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	TopP         float32
	MaxTokens    int
	HistoryLimit int
	Timeout      time.Duration
	SystemPrompt string
}

// DefaultConfig mirrors the provider settings the chat was tuned with
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai/",
		Model:        "gemini-2.0-flash",
		Temperature:  0.7,
		TopP:         0.95,
		MaxTokens:    1024,
		HistoryLimit: 10,
		Timeout:      30 * time.Second,
	}
}

// NewClient builds an OpenAI-compatible client for cfg
func NewClient(cfg Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// ChatResponder is the Responder backed by a CompletionClient and guarded by a circuit breaker
type ChatResponder struct {
	client  CompletionClient
	cfg     Config
	breaker *resilience.CircuitBreaker
	log     *logger.Logger
}

func NewChatResponder(client CompletionClient, cfg Config, breaker *resilience.CircuitBreaker, log *logger.Logger) *ChatResponder {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("ai-provider"), log)
	}
	return &ChatResponder{client: client, cfg: cfg, breaker: breaker, log: log}
}

func (r *ChatResponder) Model() string {
	return r.cfg.Model
}

// Breaker exposes the circuit breaker for health reporting
func (r *ChatResponder) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

func (r *ChatResponder) Generate(ctx context.Context, userMessage string, history []models.Message) (string, error) {
	ctx, span := otel.Tracer("ai").Start(ctx, "ai.generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", r.cfg.Model),
		attribute.Int("ai.history", min(len(history), r.cfg.HistoryLimit)),
	)

	req := r.buildRequest(userMessage, history)

	var reply string
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		text, err := r.complete(ctx, req)
		reply = text
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}

// Ping sends the probe prompt without history. It bypasses the circuit
// breaker: health polling neither trips it nor is short-circuited by it.
func (r *ChatResponder) Ping(ctx context.Context) error {
	ctx, span := otel.Tracer("ai").Start(ctx, "ai.ping", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	_, err := r.complete(ctx, r.buildRequest(ProbePrompt, nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *ChatResponder) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("ai: completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (r *ChatResponder) buildRequest(userMessage string, history []models.Message) openai.ChatCompletionRequest {
	if len(history) > r.cfg.HistoryLimit {
		history = history[len(history)-r.cfg.HistoryLimit:]
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if r.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: r.cfg.SystemPrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    providerRole(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	return openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Temperature: r.cfg.Temperature,
		TopP:        r.cfg.TopP,
		MaxTokens:   r.cfg.MaxTokens,
	}
}

func providerRole(role models.Role) string {
	switch role {
	case models.RoleAI:
		return openai.ChatMessageRoleAssistant
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
