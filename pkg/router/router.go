package router

import (
	"net/http"

	"ai-chat-app/backend/internal/api"
	"ai-chat-app/backend/pkg/config"
	"ai-chat-app/backend/pkg/di"
	"ai-chat-app/backend/pkg/errors"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			container.Logger.Warn("Invalid trusted proxies", "error", err.Error())
		}
	}

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Name:    "global",
		Limit:   rate.Limit(cfg.Security.RateLimit),
		Burst:   cfg.Security.RateLimitBurst,
		KeyFunc: middleware.ClientKey,
	})
	container.OnClose(func() error { rateLimiter.Close(); return nil })
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	sessionAuth := middleware.SessionAuth(c.JWTService, r.Config.Session.CookieName, r.Logger)

	system := api.NewSystemHandler(c.Health, "AI Chat API", r.Config.Server.Env)
	system.RegisterRoutes(r.Engine)

	if c.MetricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(c.MetricsHandler))
	}

	authHandler := api.NewAuthHandler(c.UserService, c.JWTService, api.CookieOptions{
		Name:   r.Config.Session.CookieName,
		MaxAge: int(r.Config.JWT.Expiry.Seconds()),
		Secure: r.Config.IsProduction(),
	}, r.Logger)
	authHandler.RegisterRoutes(r.Engine.Group("/auth"), sessionAuth)

	// AI replies are the expensive path, so sends get a per-user budget
	sendLimiter := middleware.NewRateLimiter(r.Logger, middleware.RateLimiterOptions{
		Name:    "chat-send",
		Limit:   middleware.PerMinute(r.Config.Security.MessageRateLimit),
		Burst:   r.Config.Security.MessageRateBurst,
		KeyFunc: middleware.UserKey,
	})
	c.OnClose(func() error { sendLimiter.Close(); return nil })

	chatHandler := api.NewChatHandler(c.ChatService)
	chat := r.Engine.Group("/chat")
	chat.Use(sessionAuth)
	chatHandler.RegisterRoutes(chat, sendLimiter.Middleware())
}

// corsMiddleware allows credentialed requests from the configured origins
func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if _, ok := origins[origin]; ok && origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, Cache-Control")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
