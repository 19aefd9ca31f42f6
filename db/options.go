package db

import (
	"github.com/ceyewan/confhub/clog"
)

// Option 组件可选依赖
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入日志器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("db")
		}
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
