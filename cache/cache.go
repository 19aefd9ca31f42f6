// Package cache 提供配置快照的缓存能力。
//
// Cache 是一个注入式能力接口，上层（配置存储与合并解析器）只依赖
// Get/SetWithTTL/Invalidate 三个操作，不关心底层驱动。提供两种驱动：
//
//   - standalone: 基于 otter 的本地内存缓存，适合单实例部署
//   - distributed: 基于 Redis 的分布式缓存，多实例共享
//
// 基本使用：
//
//	redisConn, _ := connector.NewRedis(redisConfig)
//	cacheClient, _ := cache.New(&cache.Config{
//	    Mode:       "distributed",
//	    Prefix:     "confhub:",
//	    Serializer: "msgpack",
//	}, cache.WithRedisConnector(redisConn), cache.WithLogger(logger))
//
//	err := cacheClient.SetWithTTL(ctx, "merged:app:production", snapshot, 5*time.Minute)
//
//	var cached Snapshot
//	err = cacheClient.Get(ctx, "merged:app:production", &cached)
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/confhub/xerrors"
)

// Cache 定义缓存组件的核心能力
type Cache interface {
	// Get 读取缓存值并反序列化到 dest。
	// 未命中时返回 ErrMiss。
	Get(ctx context.Context, key string, dest any) error

	// SetWithTTL 写入缓存值，ttl <= 0 表示不过期
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error

	// Invalidate 删除缓存值。key 不存在时不报错。
	Invalidate(ctx context.Context, key string) error

	// Close 关闭组件。分布式模式下连接由连接器管理，Close 为空操作。
	Close() error
}

// New 根据配置创建缓存实例。
//
// Mode 为 "standalone" 时创建本地内存缓存；
// 为 "distributed" 或空时创建 Redis 缓存，
// 需要通过 WithRedisConnector 注入 Redis 连接器。
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	switch cfg.Mode {
	case "standalone":
		return newStandalone(cfg.Standalone, opt.logger)
	case "distributed", "":
		if opt.redisConn == nil {
			return nil, xerrors.Wrap(ErrConfig, "redis connector is required for distributed mode, use WithRedisConnector")
		}
		return newRedis(opt.redisConn, cfg, opt.logger)
	default:
		return nil, xerrors.Wrapf(ErrConfig, "unsupported mode: %s", cfg.Mode)
	}
}
