package bus

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/connector"
	"github.com/ceyewan/confhub/xerrors"
)

// natsCoreBus NATS Core 总线实现
type natsCoreBus struct {
	conn   *nats.Conn
	logger clog.Logger
}

func newNATSCore(conn connector.NATSConnector, logger clog.Logger) *natsCoreBus {
	return &natsCoreBus{
		conn:   conn.GetClient(),
		logger: logger,
	}
}

func (b *natsCoreBus) Publish(ctx context.Context, topic string, data []byte, opts ...PublishOption) error {
	// NATS Core 不支持 context 超时控制，这里做简单检查
	if err := ctx.Err(); err != nil {
		return err
	}
	o := applyPublishOptions(opts)

	if len(o.headers) == 0 {
		return b.conn.Publish(topic, data)
	}
	return b.conn.PublishMsg(&nats.Msg{
		Subject: topic,
		Data:    data,
		Header:  headersToNATS(o.headers),
	})
}

func (b *natsCoreBus) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	o := applySubscribeOptions(opts)
	wrapped := WithRecover(b.logger)(handler)

	cb := func(msg *nats.Msg) {
		m := &natsCoreMessage{
			ctx:     ctx,
			msg:     msg,
			headers: headersFromNATS(msg.Header),
		}
		if err := wrapped(m); err != nil {
			b.logger.Warn("nats handler failed",
				clog.String("topic", topic),
				clog.Error(err),
			)
		}
	}

	var sub *nats.Subscription
	var err error
	if o.queueGroup != "" {
		sub, err = b.conn.QueueSubscribe(topic, o.queueGroup, cb)
	} else {
		sub, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "bus: subscribe to %s failed", topic)
	}

	return newNATSCoreSubscription(sub, ctx), nil
}

// Close 为空操作，连接由连接器管理
func (b *natsCoreBus) Close() error {
	return nil
}

type natsCoreMessage struct {
	ctx     context.Context
	msg     *nats.Msg
	headers Headers
}

func (m *natsCoreMessage) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *natsCoreMessage) Topic() string    { return m.msg.Subject }
func (m *natsCoreMessage) Data() []byte     { return m.msg.Data }
func (m *natsCoreMessage) Headers() Headers { return m.headers.Clone() }

// ID NATS Core 没有消息 ID
func (m *natsCoreMessage) ID() string { return "" }

type natsCoreSubscription struct {
	sub    *nats.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newNATSCoreSubscription(sub *nats.Subscription, parentCtx context.Context) *natsCoreSubscription {
	ctx, cancel := context.WithCancel(parentCtx)
	s := &natsCoreSubscription{
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		<-ctx.Done()
		_ = s.sub.Unsubscribe()
		s.once.Do(func() { close(s.done) })
	}()

	return s
}

func (s *natsCoreSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *natsCoreSubscription) Done() <-chan struct{} {
	return s.done
}

func headersToNATS(h Headers) nats.Header {
	if len(h) == 0 {
		return nil
	}
	nh := make(nats.Header, len(h))
	for k, v := range h {
		nh.Set(k, v)
	}
	return nh
}

func headersFromNATS(nh nats.Header) Headers {
	if len(nh) == 0 {
		return nil
	}
	h := make(Headers, len(nh))
	for k, v := range nh {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}
