package cache

import (
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/connector"
)

// Option 组件可选依赖
type Option func(*options)

type options struct {
	logger    clog.Logger
	redisConn connector.RedisConnector
}

// WithLogger 注入日志器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("cache")
		}
	}
}

// WithRedisConnector 注入 Redis 连接器，分布式模式必需
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
