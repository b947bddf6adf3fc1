package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPrefixesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(Options{Addr: mr.Addr(), Prefix: "chat:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s1", []byte("window"), time.Minute))
	assert.True(t, mr.Exists("chat:s1"))
	assert.False(t, mr.Exists("s1"))

	v, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("window"), v)

	require.NoError(t, c.Del(ctx, "s1"))
	_, err = c.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNil)
}

func TestNewAcceptsURL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(Options{Addr: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))

	_, err = New(Options{Addr: "redis://:bad:port:/x"})
	assert.Error(t, err)
}
