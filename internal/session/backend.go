package session

import (
	"context"
	"errors"
	"time"

	"ai-chat-app/backend/pkg/cache"
	"ai-chat-app/backend/shared/redis"
)

// Backend stores serialized session windows
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend keeps windows in the process; suitable for a single server.
type MemoryBackend struct {
	cache *cache.Cache[[]byte]
}

// NewMemoryBackend keeps at most maxSessions windows, dropping the least
// recently used first.
func NewMemoryBackend(maxSessions int, cleanup time.Duration) *MemoryBackend {
	return &MemoryBackend{cache: cache.New[[]byte](cache.Options{
		JanitorInterval: cleanup,
		MaxEntries:      maxSessions,
	})}
}

func (b *MemoryBackend) Load(_ context.Context, key string) ([]byte, bool, error) {
	raw, ok := b.cache.Get(key)
	return raw, ok, nil
}

func (b *MemoryBackend) Store(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.cache.SetTTL(key, value, ttl)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Delete(key)
	return nil
}

// Close stops the janitor
func (b *MemoryBackend) Close() {
	b.cache.Close()
}

// RedisBackend shares windows between server instances
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := b.client.Get(ctx, key)
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (b *RedisBackend) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl)
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key)
}
