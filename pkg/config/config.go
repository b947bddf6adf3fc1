package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai-chat-app/backend/shared/observability"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Version string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Driver     string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SSLMode    string
		MaxConns   int
		Timeout    time.Duration
		SQLitePath string
		// ConnectRetries bounds startup connection attempts
		ConnectRetries int
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
		// accepted for validation only, while tokens from before a rotation expire
		PreviousSecret string
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		// per-user budget for POST /chat/message, in messages per minute
		MessageRateLimit int
		MessageRateBurst int
		AllowedOrigins   []string
		TrustedProxies   []string
		MaxBodySize      int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// AI provider configuration
	AI struct {
		BaseURL          string
		APIKey           string
		Model            string
		Timeout          time.Duration
		Temperature      float32
		TopP             float32
		MaxTokens        int
		HistoryLimit     int
		FailureThreshold uint
		RetryTimeout     time.Duration
	}

	// Session cache configuration
	Session struct {
		CookieName string
		Window     int
		TTL        time.Duration
		Backend    string
		RedisURL   string
	}

	// Observability configuration
	Observability struct {
		TracingEnabled    bool
		TraceSampleRatio  float32
		MetricsEnabled    bool
		GRPCHealthPort    string
		OpenAPIValidation bool
		// OpenAPISchema overrides the built-in document
		OpenAPISchema string
	}

	// Vault configuration
	Vault struct {
		Enabled   bool
		Address   string
		Token     string
		Namespace string
		Path      string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates the singleton Config from environment variables
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "5000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Version = getEnvString("APP_VERSION", "dev")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	cfg.Database.Driver = getEnvString("DB_DRIVER", "postgres")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "ai-chat")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.ConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.Database.SQLitePath = getEnvString("DB_SQLITE_PATH", "chat.db")

	cfg.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 7*24*time.Hour)
	cfg.JWT.PreviousSecret = getEnvString("JWT_PREVIOUS_SECRET", "")

	cfg.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.MessageRateLimit = getEnvInt("MESSAGE_RATE_LIMIT", 20)
	cfg.Security.MessageRateBurst = getEnvInt("MESSAGE_RATE_BURST", 5)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.AI.BaseURL = getEnvString("AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	cfg.AI.APIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.AI.Model = getEnvString("AI_MODEL", "gemini-2.0-flash")
	cfg.AI.Timeout = getEnvDuration("AI_TIMEOUT", 30*time.Second)
	cfg.AI.Temperature = getEnvFloat32("AI_TEMPERATURE", 0.7)
	cfg.AI.TopP = getEnvFloat32("AI_TOP_P", 0.95)
	cfg.AI.MaxTokens = getEnvInt("AI_MAX_TOKENS", 1024)
	cfg.AI.HistoryLimit = getEnvInt("AI_HISTORY_LIMIT", 10)
	cfg.AI.FailureThreshold = uint(getEnvInt("AI_FAILURE_THRESHOLD", 5))
	cfg.AI.RetryTimeout = getEnvDuration("AI_RETRY_TIMEOUT", 30*time.Second)

	cfg.Session.CookieName = getEnvString("SESSION_COOKIE", "token")
	cfg.Session.Window = getEnvInt("SESSION_WINDOW", 50)
	cfg.Session.TTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.Session.Backend = getEnvString("SESSION_BACKEND", "memory")
	cfg.Session.RedisURL = getEnvString("REDIS_URL", "localhost:6379")

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.TraceSampleRatio = getEnvFloat32("TRACE_SAMPLE_RATIO", 1)
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.Observability.GRPCHealthPort = getEnvString("GRPC_HEALTH_PORT", "")
	cfg.Observability.OpenAPIValidation = getEnvBool("OPENAPI_VALIDATION", true)
	cfg.Observability.OpenAPISchema = getEnvString("OPENAPI_SCHEMA_PATH", "")

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.Path = getEnvString("VAULT_SECRETS_PATH", "ai-chat")

	return cfg
}

// Service describes this process for telemetry
func (c *Config) Service() observability.Service {
	return observability.Service{Name: "ai-chat-app", Version: c.Server.Version, Environment: c.Server.Env}
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
