package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ai-chat-app/backend/ai"
	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/repository"
	"ai-chat-app/backend/internal/service"
	"ai-chat-app/backend/internal/session"
	"ai-chat-app/backend/pkg/config"
	"ai-chat-app/backend/pkg/health"
	"ai-chat-app/backend/pkg/jwt"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/resilience"
	"ai-chat-app/backend/shared/observability"
	"ai-chat-app/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	DB             *gorm.DB
	Logger         *logger.Logger
	JWTService     *jwt.Service
	Users          repository.UserRepository
	History        repository.HistoryStore
	SessionCache   *session.Cache
	Responder      ai.Responder
	Breaker        *resilience.CircuitBreaker
	ChatService    *service.ChatService
	UserService    *service.UserService
	Health         *health.Checker
	Metrics        *observability.Metrics
	MetricsHandler http.Handler

	closers []func() error
}

// Option customises container construction
type Option func(*options)

type options struct {
	responder ai.Responder
	backend   session.Backend
}

// WithResponder replaces the provider-backed responder
func WithResponder(r ai.Responder) Option {
	return func(o *options) { o.responder = r }
}

// WithSessionBackend replaces the configured session backend
func WithSessionBackend(b session.Backend) Option {
	return func(o *options) { o.backend = b }
}

// New creates a new dependency injection container
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.New(logger.DefaultConfig())
	}

	c := &Container{Config: cfg, DB: db, Logger: log}
	c.JWTService = jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry, jwt.WithPreviousSecret(cfg.JWT.PreviousSecret))

	c.Metrics = observability.NoopMetrics()
	if cfg.Observability.MetricsEnabled {
		mp, handler, err := observability.SetupPrometheusMetrics(cfg.Service())
		if err != nil {
			return nil, err
		}
		metrics, err := observability.NewMetrics(mp)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		c.Metrics = metrics
		c.MetricsHandler = handler
		c.closers = append(c.closers, func() error { return mp.Shutdown(context.Background()) })
	}

	c.Health = health.NewChecker(log, 30*time.Second)

	backend := o.backend
	if backend == nil {
		b, err := c.sessionBackend()
		if err != nil {
			return nil, err
		}
		backend = b
	}
	c.SessionCache = session.New(backend, session.Options{Window: cfg.Session.Window, TTL: cfg.Session.TTL}, log)

	c.Responder = o.responder
	if c.Responder == nil {
		aiCfg := ai.Config{
			BaseURL:      cfg.AI.BaseURL,
			APIKey:       cfg.AI.APIKey,
			Model:        cfg.AI.Model,
			Temperature:  cfg.AI.Temperature,
			TopP:         cfg.AI.TopP,
			MaxTokens:    cfg.AI.MaxTokens,
			HistoryLimit: cfg.AI.HistoryLimit,
			Timeout:      cfg.AI.Timeout,
		}
		breakerCfg := resilience.DefaultCircuitBreakerConfig("ai-provider")
		if cfg.AI.FailureThreshold > 0 {
			breakerCfg.FailureThreshold = cfg.AI.FailureThreshold
		}
		if cfg.AI.RetryTimeout > 0 {
			breakerCfg.RetryTimeout = cfg.AI.RetryTimeout
		}
		metrics := c.Metrics
		breakerCfg.OnStateChange = func(name string, _, to resilience.CircuitBreakerState) {
			metrics.BreakerTransition(context.Background(), name, string(to))
		}
		c.Breaker = resilience.NewCircuitBreaker(breakerCfg, log)
		if cfg.AI.APIKey == "" {
			log.Warn("GEMINI_API_KEY is not set; replies will use the fallback text")
		}
		c.Responder = ai.NewChatResponder(ai.NewClient(aiCfg), aiCfg, c.Breaker, log)
	}
	if c.Breaker != nil {
		c.Health.RegisterBreakerCheck("ai-provider", c.Breaker)
	}

	settings := models.ChatSettings{
		Temperature:  cfg.AI.Temperature,
		MaxTokens:    cfg.AI.MaxTokens,
		EnableMemory: true,
	}
	history := repository.NewGormHistoryStore(db, c.Responder.Model(), settings)
	c.History = history
	c.Users = repository.NewGormUserRepository(db)
	c.Health.RegisterDatabaseCheck(history.Ping)

	c.ChatService = service.NewChatService(c.History, c.SessionCache, c.Responder, c.Metrics, log)
	c.ChatService.SetHistoryLimit(cfg.AI.HistoryLimit)
	c.UserService = service.NewUserService(c.Users, c.JWTService, c.ChatService)

	return c, nil
}

func (c *Container) sessionBackend() (session.Backend, error) {
	switch c.Config.Session.Backend {
	case "redis":
		client, err := redis.New(redis.Options{
			Addr:        c.Config.Session.RedisURL,
			Prefix:      "ai-chat:",
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		c.Health.RegisterPingCheck("redis", client.Ping)
		return session.NewRedisBackend(client), nil
	case "memory", "":
		b := session.NewMemoryBackend(10000, 5*time.Minute)
		c.closers = append(c.closers, func() error { b.Close(); return nil })
		return b, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", c.Config.Session.Backend)
	}
}

// OnClose registers fn to run on Close, in reverse registration order
func (c *Container) OnClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases background resources
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("Error during shutdown", "error", err.Error())
		}
	}
}
