// Package cache keeps object metadata in Redis so previews and downloads can
// skip a HEAD request. Redis is only an optimisation: every failure is
// logged and reported as a miss, never returned to the caller.
package cache

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dropshare/service/internal/storage"
)

const (
	fieldContentLength = "content_length"
	fieldContentType   = "content_type"
)

// Redis is a storage.MetadataCache backed by Redis hashes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// Options configures the Redis connection.
type Options struct {
	Host string
	Port int
	// TTL is applied to every entry; zero keeps entries until evicted.
	TTL time.Duration
}

// New returns a Redis cache. It does not dial; connection problems show up
// as misses and in Ping.
func New(opts Options, logger zerolog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &Redis{client: client, ttl: opts.TTL, logger: logger}
}

// Get returns the cached metadata for key.
func (c *Redis) Get(ctx context.Context, key string) (storage.Metadata, bool) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("unable to get metadata from redis")
		return storage.Metadata{}, false
	}
	if len(fields) == 0 {
		return storage.Metadata{}, false
	}

	size, err := strconv.ParseInt(fields[fieldContentLength], 10, 64)
	if err != nil || size < 0 || fields[fieldContentType] == "" {
		c.logger.Warn().Str("key", key).Interface("fields", fields).Msg("ignoring malformed cache entry")
		return storage.Metadata{}, false
	}
	c.logger.Debug().Str("key", key).Msg("metadata served from redis")
	return storage.Metadata{ContentLength: size, ContentType: fields[fieldContentType]}, true
}

// Set stores md under key and reports whether it was written.
func (c *Redis) Set(ctx context.Context, key string, md storage.Metadata) bool {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldContentLength, strconv.FormatInt(md.ContentLength, 10),
			fieldContentType, md.ContentType,
		)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("unable to insert metadata into redis")
		return false
	}
	return true
}

// Delete removes key and reports whether the command succeeded.
func (c *Redis) Delete(ctx context.Context, key string) bool {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("unable to delete metadata from redis")
		return false
	}
	return true
}

// Ping checks that Redis answers.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}

var _ storage.MetadataCache = (*Redis)(nil)
