package middleware

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai-chat-app/backend/pkg/errors"
	"ai-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Name labels the limiter in logs
	Name string
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep idle client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns the global per-client budget
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Name:           "global",
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc:        ClientKey,
	}
}

// PerMinute converts a per-minute budget into a rate.Limit
func PerMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	buckets map[string]*bucket
	logger  *logger.Logger
	once    sync.Once
	stop    chan struct{}
	stopped sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = ClientKey
	}
	if opts.ExpiryDuration <= 0 {
		opts.ExpiryDuration = time.Hour
	}

	return &RateLimiter{
		options: opts,
		buckets: make(map[string]*bucket),
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// ClientKey limits callers carrying a session token per token and everyone
// else per IP. It runs before authentication, so the token is not verified.
func ClientKey(c *gin.Context) string {
	if token := TokenFromRequest(c, "token"); token != "" {
		return "session:" + token
	}
	return "ip:" + c.ClientIP()
}

// UserKey limits per authenticated user across all of their sessions. It must
// run after SessionAuth; unauthenticated requests fall back to ClientKey.
func UserKey(c *gin.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return "user:" + strconv.FormatUint(uint64(id.UserID), 10)
	}
	return ClientKey(c)
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	r.once.Do(func() { go r.cleanup() })

	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		now := time.Now()
		res := r.getLimiter(key, now).ReserveN(now, 1)

		if wait := res.DelayFrom(now); !res.OK() || wait > 0 {
			res.CancelAt(now)
			r.logger.Warn("Rate limit exceeded",
				"limiter", r.options.Name,
				"client", redact(key),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait, res.OK())))
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError(errors.CodeRateLimited, "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(wait time.Duration, ok bool) int {
	if !ok {
		return 60
	}
	return int(math.Max(1, math.Ceil(wait.Seconds())))
}

// redact keeps session tokens out of logs
func redact(key string) string {
	if rest, ok := strings.CutPrefix(key, "session:"); ok && len(rest) > 8 {
		return "session:" + rest[len(rest)-8:]
	}
	return key
}

func (r *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(r.options.Limit, r.options.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Close stops the background cleanup
func (r *RateLimiter) Close() {
	r.stopped.Do(func() { close(r.stop) })
}

func (r *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for k, b := range r.buckets {
				if now.Sub(b.lastSeen) > r.options.ExpiryDuration {
					delete(r.buckets, k)
				}
			}
			r.mu.Unlock()
		}
	}
}
