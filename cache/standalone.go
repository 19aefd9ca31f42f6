package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/xerrors"
)

// defaultTTL 当未指定 TTL 时使用的默认时间（100年，模拟永久）
const defaultTTL = 24 * 365 * 100 * time.Hour

type standaloneCache struct {
	cache  *otter.Cache[string, any]
	logger clog.Logger
}

func newStandalone(cfg *StandaloneConfig, logger clog.Logger) (Cache, error) {
	opts := &otter.Options[string, any]{
		MaximumSize:   cfg.Capacity,
		StatsRecorder: stats.NewCounter(),
		// 写入过期策略，与 Redis TTL 语义一致：
		// 过期时间从写入开始计算，读取不重置 TTL。
		// 具体 TTL 在 SetWithTTL 时通过 SetExpiresAfter 覆盖。
		ExpiryCalculator: otter.ExpiryWriting[string, any](defaultTTL),
	}

	c, err := otter.New(opts)
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: failed to build otter cache")
	}

	return &standaloneCache{
		cache:  c,
		logger: logger,
	}, nil
}

func (c *standaloneCache) Get(ctx context.Context, key string, dest any) error {
	val, ok := c.cache.GetIfPresent(key)
	if !ok {
		return ErrMiss
	}
	return assignValue(val, dest)
}

func (c *standaloneCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.cache.Set(key, value)
	if ttl > 0 {
		c.cache.SetExpiresAfter(key, ttl)
	}
	return nil
}

func (c *standaloneCache) Invalidate(ctx context.Context, key string) error {
	c.cache.Invalidate(key)
	return nil
}

func (c *standaloneCache) Close() error {
	c.cache.StopAllGoroutines()
	return nil
}

// assignValue 将缓存值赋给 dest 指向的内容。
// 基于反射的浅拷贝：缓存对象包含指针时 dest 与缓存共享底层数据，
// 调用方应将获取的对象视为只读。
func assignValue(val any, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return xerrors.New("cache: dest must be a non-nil pointer")
	}
	dv = dv.Elem()

	sv := reflect.ValueOf(val)
	if sv.Type().AssignableTo(dv.Type()) {
		dv.Set(sv)
		return nil
	}
	if dv.Kind() == reflect.Interface && sv.Type().Implements(dv.Type()) {
		dv.Set(sv)
		return nil
	}

	return xerrors.Newf("cache: cannot assign cached value of type %T to dest of type %T", val, dest)
}
