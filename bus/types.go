package bus

import "context"

// Headers 消息头，用于透传元数据
type Headers map[string]string

// Clone 深拷贝消息头
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Get 读取消息头，不存在返回空字符串
func (h Headers) Get(key string) string {
	return h[key]
}

// Set 写入消息头
func (h Headers) Set(key, value string) {
	h[key] = value
}

// Message 总线投递给 Handler 的消息
type Message interface {
	// Context 返回订阅生命周期上下文
	Context() context.Context

	// Topic 返回消息主题
	Topic() string

	// Data 返回消息体
	Data() []byte

	// Headers 返回消息头的拷贝
	Headers() Headers

	// ID 返回消息 ID，后端不支持时为空
	ID() string
}

// Handler 消息处理函数
type Handler func(msg Message) error

// Subscription 订阅句柄
type Subscription interface {
	// Unsubscribe 取消订阅
	Unsubscribe() error

	// Done 订阅完全停止后关闭
	Done() <-chan struct{}
}

// PublishOption 发布选项
type PublishOption func(*publishOptions)

type publishOptions struct {
	headers Headers
}

// WithHeaders 设置消息头
func WithHeaders(h Headers) PublishOption {
	return func(o *publishOptions) {
		o.headers = h
	}
}

// SubscribeOption 订阅选项
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	queueGroup string
}

// WithQueueGroup 设置队列组，同组订阅方负载均衡消费
func WithQueueGroup(group string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.queueGroup = group
	}
}

func applyPublishOptions(opts []PublishOption) publishOptions {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func applySubscribeOptions(opts []SubscribeOption) subscribeOptions {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
