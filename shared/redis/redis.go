// Package redis wraps go-redis with key namespacing for the shared session cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNil is returned by Get for a missing key
var ErrNil = errors.New("redis: key not found")

// Options configures a Client
type Options struct {
	// Addr is host:port or a redis:// / rediss:// URL
	Addr        string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// Client namespaces every key under Prefix
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New builds a client; it does not dial until the first command.
func New(opts Options) (*Client, error) {
	var ro *redis.Options
	switch addr := opts.Addr; {
	case strings.HasPrefix(addr, "redis://"), strings.HasPrefix(addr, "rediss://"):
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		ro = parsed
	case addr == "":
		ro = &redis.Options{Addr: "localhost:6379"}
	default:
		ro = &redis.Options{Addr: addr}
	}
	if opts.Password != "" {
		ro.Password = opts.Password
	}
	if opts.DB != 0 {
		ro.DB = opts.DB
	}
	if opts.DialTimeout > 0 {
		ro.DialTimeout = opts.DialTimeout
	}
	return &Client{rdb: redis.NewClient(ro), prefix: opts.Prefix}, nil
}

func (c *Client) key(k string) string { return c.prefix + k }

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNil
	}
	return b, err
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
