// Package cache is a bounded in-memory LRU with per-entry expiry.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Options configures a Cache
type Options struct {
	// DefaultTTL applies to Set; zero means entries never expire
	DefaultTTL time.Duration
	// JanitorInterval enables a background sweep of expired entries
	JanitorInterval time.Duration
	// MaxEntries evicts the least recently used entry when exceeded; zero is unbounded
	MaxEntries int
	// OnEvict is called for entries removed by expiry or capacity, not Delete
	OnEvict func(key string, value any)
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is safe for concurrent use
type Cache[V any] struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	order *list.List // front is most recently used
	index map[string]*list.Element

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a cache and starts the janitor if one is configured
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		opts:  opts,
		now:   time.Now,
		order: list.New(),
		index: make(map[string]*list.Element),
		stop:  make(chan struct{}),
	}
	if opts.JanitorInterval > 0 {
		go c.janitor(opts.JanitorInterval)
	}
	return c
}

// Set stores value under key with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.opts.DefaultTTL)
}

// SetTTL stores value under key; ttl <= 0 never expires
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	c.mu.Lock()
	var evicted []*entry[V]
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry[V])
		e.value, e.expiresAt = value, exp
		c.order.MoveToFront(el)
	} else {
		c.index[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: exp})
		for c.opts.MaxEntries > 0 && c.order.Len() > c.opts.MaxEntries {
			evicted = append(evicted, c.removeElement(c.order.Back()))
		}
	}
	c.mu.Unlock()

	c.notify(evicted)
}

// Get returns the live value for key and marks it recently used
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	el, ok := c.index[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	e := el.Value.(*entry[V])
	if e.expired(c.now()) {
		c.removeElement(el)
		c.mu.Unlock()
		c.notify([]*entry[V]{e})
		return zero, false
	}
	c.order.MoveToFront(el)
	c.mu.Unlock()
	return e.value, true
}

// Delete removes key without calling OnEvict
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeElement(el)
	}
}

// Len counts stored entries, expired ones included until swept
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the janitor
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) removeElement(el *list.Element) *entry[V] {
	e := c.order.Remove(el).(*entry[V])
	delete(c.index, e.key)
	return e
}

func (c *Cache[V]) notify(evicted []*entry[V]) {
	if c.opts.OnEvict == nil {
		return
	}
	for _, e := range evicted {
		c.opts.OnEvict(e.key, e.value)
	}
}

func (c *Cache[V]) sweep() {
	now := c.now()
	var evicted []*entry[V]

	c.mu.Lock()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry[V]).expired(now) {
			evicted = append(evicted, c.removeElement(el))
		}
		el = prev
	}
	c.mu.Unlock()

	c.notify(evicted)
}

func (c *Cache[V]) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}
