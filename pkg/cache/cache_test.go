package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache[V any](opts Options) (*Cache[V], *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[V](opts)
	c.now = clk.now
	return c, clk
}

func TestSetGetDelete(t *testing.T) {
	c, _ := newTestCache[int](Options{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestExpiry(t *testing.T) {
	var evicted []string
	c, clk := newTestCache[string](Options{OnEvict: func(k string, _ any) { evicted = append(evicted, k) }})

	c.SetTTL("short", "x", time.Second)
	c.SetTTL("forever", "y", 0)
	clk.t = clk.t.Add(2 * time.Second)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, []string{"short"}, evicted)
}

func TestSweepRemovesExpired(t *testing.T) {
	c, clk := newTestCache[int](Options{DefaultTTL: time.Second})
	c.Set("a", 1)
	c.Set("b", 2)
	c.SetTTL("c", 3, time.Hour)
	clk.t = clk.t.Add(time.Minute)

	c.sweep()
	assert.Equal(t, 1, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, _ := newTestCache[int](Options{MaxEntries: 2, OnEvict: func(k string, _ any) { evicted = append(evicted, k) }})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now the coldest
	c.Set("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache[int](Options{MaxEntries: 1})

	c.Set("a", 1)
	c.Set("a", 2)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
