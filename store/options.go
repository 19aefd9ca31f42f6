package store

import (
	"github.com/ceyewan/confhub/bus"
	"github.com/ceyewan/confhub/cache"
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/history"
	"github.com/ceyewan/confhub/meta"
	"github.com/ceyewan/confhub/metrics"
)

// Option 组件可选依赖。
// 审计账本、缓存、事件总线都是注入的旁路能力，
// 缺省时对应的副作用直接跳过。
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	ledger history.Ledger
	meta   meta.Registry
	cache  cache.Cache
	bus    bus.Bus
	cipher Cipher
}

// WithLogger 注入日志器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("store")
		}
	}
}

// WithMeter 注入指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithHistory 注入审计账本，每次成功的写操作追加一条记录
func WithHistory(ledger history.Ledger) Option {
	return func(o *options) {
		o.ledger = ledger
	}
}

// WithMeta 注入元数据注册表，写操作按其校验规则检查明文值
func WithMeta(registry meta.Registry) Option {
	return func(o *options) {
		o.meta = registry
	}
}

// WithCache 注入缓存，写操作使对应分类环境的合并快照失效
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithBus 注入事件总线，写操作发布变更事件
func WithBus(b bus.Bus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// WithCipher 注入加解密实现，默认透传
func WithCipher(c Cipher) Option {
	return func(o *options) {
		if c != nil {
			o.cipher = c
		}
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	if o.cipher == nil {
		o.cipher = PassthroughCipher{}
	}
}
