package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgs(n int, prefix string) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{ExternalID: fmt.Sprintf("%s%d", prefix, i), Content: fmt.Sprintf("%s%d", prefix, i), Role: models.RoleUser}
	}
	return out
}

func backends(t *testing.T) map[string]Backend {
	mr := miniredis.RunT(t)
	client, err := redis.New(redis.Options{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryBackend(100, 0)
	t.Cleanup(mem.Close)

	return map[string]Backend{
		"memory": mem,
		"redis":  NewRedisBackend(client),
	}
}

func TestCacheLifecycle(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := New(backend, Options{Window: 50, TTL: time.Hour}, logger.Discard())

			_, ok := c.Get(ctx, "sid")
			assert.False(t, ok)

			c.Replace(ctx, "sid", msgs(3, "m"))
			got, ok := c.Get(ctx, "sid")
			require.True(t, ok)
			assert.Len(t, got, 3)
			assert.Equal(t, "m0", got[0].ExternalID)

			c.Append(ctx, "sid", msgs(2, "n")...)
			got, ok = c.Get(ctx, "sid")
			require.True(t, ok)
			assert.Len(t, got, 5)
			assert.Equal(t, "n1", got[4].ExternalID)

			c.Invalidate(ctx, "sid")
			_, ok = c.Get(ctx, "sid")
			assert.False(t, ok)
		})
	}
}

func TestAppendLeavesUnpopulatedSessionEmpty(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), Options{}, nil)

	c.Append(ctx, "sid", msgs(2, "m")...)
	_, ok := c.Get(ctx, "sid")
	assert.False(t, ok)
}

func TestEmptyWindowIsPopulated(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), Options{}, nil)

	c.Replace(ctx, "sid", nil)
	got, ok := c.Get(ctx, "sid")
	assert.True(t, ok)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestWindowIsCapped(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), Options{Window: 50}, nil)

	c.Replace(ctx, "sid", msgs(49, "m"))
	c.Append(ctx, "sid", msgs(2, "n")...)

	got, ok := c.Get(ctx, "sid")
	require.True(t, ok)
	assert.Len(t, got, 50)
	assert.Equal(t, "m1", got[0].ExternalID)
	assert.Equal(t, "n1", got[49].ExternalID)
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), Options{}, nil)

	c.Replace(ctx, "a", msgs(1, "a"))
	c.Replace(ctx, "b", msgs(2, "b"))

	a, _ := c.Get(ctx, "a")
	b, _ := c.Get(ctx, "b")
	assert.Len(t, a, 1)
	assert.Len(t, b, 2)

	_, ok := c.Get(ctx, "")
	assert.False(t, ok)
}

type brokenBackend struct{}

func (brokenBackend) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (brokenBackend) Store(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenBackend) Delete(context.Context, string) error { return errors.New("down") }

func TestBackendFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	c := New(brokenBackend{}, Options{}, nil)

	c.Replace(ctx, "sid", msgs(1, "m"))
	_, ok := c.Get(ctx, "sid")
	assert.False(t, ok)
	c.Invalidate(ctx, "sid")
}

// pausingBackend holds the first Load until release is closed
type pausingBackend struct {
	Backend
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (b *pausingBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := b.Backend.Load(ctx, key)
	b.once.Do(func() {
		close(b.loaded)
		<-b.release
	})
	return raw, ok, err
}

func TestInvalidateWaitsForInflightAppend(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend(10, 0)
	defer mem.Close()

	c := New(mem, Options{TTL: time.Hour}, nil)
	c.Replace(ctx, "sid", msgs(2, "old"))

	gated := &pausingBackend{Backend: mem, loaded: make(chan struct{}), release: make(chan struct{})}
	c.backend = gated

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Append(ctx, "sid", msgs(1, "new")...)
	}()
	<-gated.loaded

	go func() {
		defer wg.Done()
		c.Invalidate(ctx, "sid")
	}()
	time.Sleep(20 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	got, ok := c.Get(ctx, "sid")
	assert.False(t, ok, "cleared window came back: %v", got)
}

func TestStoreFailureDropsWindowWithoutDeadlock(t *testing.T) {
	ctx := context.Background()
	c := New(brokenBackend{}, Options{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Replace(ctx, "sid", msgs(1, "m"))
		c.Invalidate(ctx, "sid")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cache locked up after a failed write")
	}
}

func TestRedisEntriesExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.New(redis.Options{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	c := New(NewRedisBackend(client), Options{TTL: time.Minute}, nil)
	c.Replace(ctx, "sid", msgs(1, "m"))

	mr.FastForward(2 * time.Minute)
	_, ok := c.Get(ctx, "sid")
	assert.False(t, ok)
}
