package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/pkg/models"
)

// RedisCache caches template versions in Redis with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to Redis using a redis:// URL.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Redis template cache initialized")
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func cacheKey(templateID, version string) string {
	return "template:" + templateID + ":" + version
}

func (c *RedisCache) Put(ctx context.Context, tv *models.TemplateVersion, latest bool) {
	data, err := json.Marshal(tv)
	if err != nil {
		log.Warn().Err(err).Msg("template cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(tv.TemplateID, tv.Version), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("template_id", tv.TemplateID).Msg("template cache set failed")
		return
	}
	if latest {
		if err := c.rdb.Set(ctx, cacheKey(tv.TemplateID, LatestAlias), data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("template_id", tv.TemplateID).Msg("template cache set failed")
		}
	}
}

func (c *RedisCache) Get(ctx context.Context, templateID, version string) *models.TemplateVersion {
	data, err := c.rdb.Get(ctx, cacheKey(templateID, version)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("template_id", templateID).Msg("template cache get failed")
		}
		return nil
	}
	var tv models.TemplateVersion
	if err := json.Unmarshal(data, &tv); err != nil {
		log.Warn().Err(err).Str("template_id", templateID).Msg("template cache decode failed")
		return nil
	}
	return &tv
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
