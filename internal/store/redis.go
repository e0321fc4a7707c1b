package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/muscab101/weather-app/internal/weather"
)

const redisKeyPrefix = "weather:"

// RedisCache keeps snapshots in redis as JSON, shared between processes.
type RedisCache struct {
	client     *redis.Client
	logger     zerolog.Logger
	expiration time.Duration
}

// NewRedisCache wraps client. An expiration of zero keeps entries forever.
func NewRedisCache(client *redis.Client, logger zerolog.Logger, expiration time.Duration) *RedisCache {
	return &RedisCache{
		client:     client,
		logger:     logger.With().Str("component", "redis_cache").Logger(),
		expiration: expiration,
	}
}

// Put stores the snapshot under the coordinate key.
func (c *RedisCache) Put(ctx context.Context, key string, snapshot weather.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Error().Ctx(ctx).Err(err).Msg("failed to marshal snapshot for cache")
		return err
	}

	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.expiration).Err(); err != nil {
		c.logger.Error().
			Ctx(ctx).
			Str("key", key).
			Err(err).
			Msg("cache write failed")
		return err
	}
	return nil
}

// Get reads the snapshot for key. Missing keys, redis failures and undecodable
// payloads are all misses.
func (c *RedisCache) Get(ctx context.Context, key string) (weather.Snapshot, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error().
				Ctx(ctx).
				Str("key", key).
				Err(err).
				Msg("cache read failed")
		}
		return weather.Snapshot{}, false
	}

	var snap weather.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Error().
			Ctx(ctx).
			Str("key", key).
			Err(err).
			Msg("failed to unmarshal cached snapshot")
		return weather.Snapshot{}, false
	}
	return snap, true
}

// Ping checks connectivity at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
