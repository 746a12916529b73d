package cache_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropshare/service/internal/cache"
	"github.com/dropshare/service/internal/storage"
)

func newTestCache(t *testing.T, ttl time.Duration) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c := cache.New(cache.Options{Host: mr.Host(), Port: port, TTL: ttl}, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisRoundTrip(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()
	md := storage.Metadata{ContentLength: 11, ContentType: "text/plain"}

	_, ok := c.Get(ctx, "ab12cd/test.txt")
	assert.False(t, ok)

	require.True(t, c.Set(ctx, "ab12cd/test.txt", md))
	assert.Equal(t, "11", mr.HGet("ab12cd/test.txt", "content_length"))
	assert.Equal(t, "text/plain", mr.HGet("ab12cd/test.txt", "content_type"))

	got, ok := c.Get(ctx, "ab12cd/test.txt")
	require.True(t, ok)
	assert.Equal(t, md, got)

	require.True(t, c.Delete(ctx, "ab12cd/test.txt"))
	_, ok = c.Get(ctx, "ab12cd/test.txt")
	assert.False(t, ok)
}

func TestRedisTTL(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "ab12cd/a.bin", storage.Metadata{ContentLength: 1, ContentType: "application/octet-stream"}))
	assert.Equal(t, time.Hour, mr.TTL("ab12cd/a.bin"))

	mr.FastForward(2 * time.Hour)
	_, ok := c.Get(ctx, "ab12cd/a.bin")
	assert.False(t, ok)
}

func TestRedisMalformedEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t, 0)
	mr.HSet("ab12cd/bad", "content_length", "many", "content_type", "text/plain")

	_, ok := c.Get(context.Background(), "ab12cd/bad")
	assert.False(t, ok)
}

func TestRedisOutageIsMiss(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()
	require.True(t, c.Set(ctx, "ab12cd/a.txt", storage.Metadata{ContentLength: 1, ContentType: "text/plain"}))
	require.NoError(t, c.Ping(ctx))

	mr.Close()

	_, ok := c.Get(ctx, "ab12cd/a.txt")
	assert.False(t, ok)
	assert.False(t, c.Set(ctx, "ab12cd/a.txt", storage.Metadata{ContentLength: 1, ContentType: "text/plain"}))
	assert.False(t, c.Delete(ctx, "ab12cd/a.txt"))
	assert.Error(t, c.Ping(ctx))
}
