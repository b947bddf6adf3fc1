// Package session holds the per-login window of recently served messages.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/pkg/logger"
)

// DefaultWindow is the most messages a session keeps
const DefaultWindow = 50

const keyPrefix = "chat:session:"

// Options configures a Cache
type Options struct {
	Window int
	TTL    time.Duration
}

// Cache is the session-scoped message window. Every failure is logged and
// reported as a miss, so callers can always fall back to the history store.
type Cache struct {
	backend Backend
	window  int
	ttl     time.Duration
	log     *logger.Logger

	// serialises read-modify-write appends against replaces and invalidations
	mu sync.Mutex
}

func New(backend Backend, opts Options, log *logger.Logger) *Cache {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{backend: backend, window: opts.Window, ttl: opts.TTL, log: log}
}

// Window is the configured cap
func (c *Cache) Window() int {
	return c.window
}

// Get returns the cached window and whether the session has one
func (c *Cache) Get(ctx context.Context, sessionID string) ([]models.Message, bool) {
	if sessionID == "" {
		return nil, false
	}

	raw, ok, err := c.backend.Load(ctx, keyPrefix+sessionID)
	if err != nil {
		c.log.Warn("Session cache read failed", "session_id", sessionID, "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var msgs []models.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		c.log.Warn("Session cache entry corrupt", "session_id", sessionID, "error", err.Error())
		_ = c.backend.Delete(ctx, keyPrefix+sessionID)
		return nil, false
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, true
}

// Replace stores msgs as the session's window, keeping only the newest entries
func (c *Cache) Replace(ctx context.Context, sessionID string, msgs []models.Message) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(ctx, sessionID, msgs)
}

// Append adds msgs to a populated window. An unpopulated session stays
// unpopulated so the next fetch still reads the full history.
func (c *Cache) Append(ctx context.Context, sessionID string, msgs ...models.Message) {
	if sessionID == "" || len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.Get(ctx, sessionID)
	if !ok {
		return
	}
	c.store(ctx, sessionID, append(current, msgs...))
}

// Invalidate drops the session's window. It waits for an in-flight Append so
// the append cannot write the dropped window back.
func (c *Cache) Invalidate(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop(ctx, sessionID)
}

// drop must be called with c.mu held
func (c *Cache) drop(ctx context.Context, sessionID string) {
	if err := c.backend.Delete(ctx, keyPrefix+sessionID); err != nil {
		c.log.Warn("Session cache delete failed", "session_id", sessionID, "error", err.Error())
	}
}

func (c *Cache) store(ctx context.Context, sessionID string, msgs []models.Message) {
	if len(msgs) > c.window {
		msgs = msgs[len(msgs)-c.window:]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	raw, err := json.Marshal(msgs)
	if err != nil {
		c.log.Warn("Session cache encode failed", "session_id", sessionID, "error", err.Error())
		return
	}
	if err := c.backend.Store(ctx, keyPrefix+sessionID, raw, c.ttl); err != nil {
		c.log.Warn("Session cache write failed", "session_id", sessionID, "error", err.Error())
		c.drop(ctx, sessionID)
	}
}
