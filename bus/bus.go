// Package bus 提供事件总线组件，承载配置变更与热重载事件的发布订阅。
//
// 设计原则：
//   - 简单优于复杂：核心接口精简，通过 Option 扩展能力
//   - 显式优于隐式：不做自动注入，调用方完全掌控消息流
//   - 可替换后端：单进程部署用 inproc 驱动，多实例部署用 NATS Core
//
// 基本使用：
//
//	eventBus, err := bus.New(&bus.Config{Driver: bus.DriverNATSCore},
//	    bus.WithNATSConnector(natsConn), bus.WithLogger(logger))
//
//	sub, _ := eventBus.Subscribe(ctx, event.TopicChanges, func(msg bus.Message) error {
//	    change, err := event.UnmarshalChange(msg.Data())
//	    ...
//	})
//	defer sub.Unsubscribe()
package bus

import (
	"context"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/connector"
	"github.com/ceyewan/confhub/xerrors"
)

// Bus 事件总线核心接口
type Bus interface {
	// Publish 发布消息到指定主题
	Publish(ctx context.Context, topic string, data []byte, opts ...PublishOption) error

	// Subscribe 订阅主题并处理消息。
	// ctx 取消时订阅自动停止。Handler 内 panic 会被捕获并转换为错误。
	Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) (Subscription, error)

	// Close 关闭总线。NATS 连接由连接器管理，这里仅释放内部资源。
	Close() error
}

// Driver 总线后端类型
type Driver string

const (
	// DriverInproc 进程内总线，单实例部署使用
	DriverInproc Driver = "inproc"
	// DriverNATSCore NATS Core 总线，多实例部署使用
	DriverNATSCore Driver = "nats_core"
)

// Config 总线配置
type Config struct {
	// Driver 后端类型: "inproc" | "nats_core" (默认 "inproc")
	Driver Driver `json:"driver" yaml:"driver" mapstructure:"driver"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverInproc
	}
}

// New 根据配置创建总线实例。
// NATS 驱动需要通过 WithNATSConnector 注入连接器。
func New(cfg *Config, opts ...Option) (Bus, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}

	switch cfg.Driver {
	case DriverInproc:
		return newInproc(o.logger), nil
	case DriverNATSCore:
		if o.natsConnector == nil {
			return nil, xerrors.Wrap(ErrConfig, "nats connector required, use WithNATSConnector")
		}
		return newNATSCore(o.natsConnector, o.logger), nil
	default:
		return nil, xerrors.Wrapf(ErrConfig, "unsupported driver: %s", cfg.Driver)
	}
}

// Option 总线可选依赖
type Option func(*options)

type options struct {
	logger        clog.Logger
	natsConnector connector.NATSConnector
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("bus")
		}
	}
}

// WithNATSConnector 注入 NATS 连接器
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) {
		o.natsConnector = conn
	}
}
