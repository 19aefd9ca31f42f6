package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/confhub/cache/serializer"
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/connector"
	"github.com/ceyewan/confhub/xerrors"
)

type redisCache struct {
	client     *redis.Client
	serializer serializer.Serializer
	prefix     string
	logger     clog.Logger
}

func newRedis(conn connector.RedisConnector, cfg *Config, logger clog.Logger) (Cache, error) {
	s, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	return &redisCache{
		client:     conn.GetClient(),
		serializer: s,
		prefix:     cfg.Prefix,
		logger:     logger,
	}, nil
}

func (c *redisCache) getKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.getKey(key)).Bytes()
	if err != nil {
		if xerrors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return xerrors.Wrapf(err, "cache: get %q", key)
	}
	return c.serializer.Unmarshal(data, dest)
}

func (c *redisCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.getKey(key), data, ttl).Err()
}

func (c *redisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.getKey(key)).Err()
}

// Close 为空操作，Redis 连接由连接器管理
func (c *redisCache) Close() error {
	return nil
}
