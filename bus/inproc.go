package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ceyewan/confhub/clog"
)

// inprocQueueSize 每个订阅的投递队列容量，写满时丢弃新消息
const inprocQueueSize = 256

// inprocBus 进程内总线实现。
// 主题精确匹配，每个订阅由单独的 goroutine 按发布顺序串行投递，
// 发布方不阻塞。
type inprocBus struct {
	mu     sync.RWMutex
	subs   map[string][]*inprocSubscription
	closed bool
	logger clog.Logger
}

func newInproc(logger clog.Logger) *inprocBus {
	return &inprocBus{
		subs:   make(map[string][]*inprocSubscription),
		logger: logger,
	}
}

func (b *inprocBus) Publish(ctx context.Context, topic string, data []byte, opts ...PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := applyPublishOptions(opts)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*inprocSubscription, len(b.subs[topic]))
	copy(targets, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range targets {
		msg := &inprocMessage{
			ctx:     sub.ctx,
			topic:   topic,
			data:    data,
			headers: o.headers.Clone(),
			id:      uuid.NewString(),
		}
		select {
		case sub.queue <- msg:
		case <-sub.ctx.Done():
		default:
			b.logger.Warn("inproc queue full, message dropped",
				clog.String("topic", topic))
		}
	}
	return nil
}

func (b *inprocBus) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	// inproc 不支持队列组，订阅选项仅为接口兼容
	_ = applySubscribeOptions(opts)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &inprocSubscription{
		bus:     b,
		topic:   topic,
		handler: WithRecover(b.logger)(handler),
		ctx:     subCtx,
		cancel:  cancel,
		queue:   make(chan Message, inprocQueueSize),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	go sub.deliver(b.logger)
	go func() {
		<-subCtx.Done()
		b.remove(sub)
		sub.once.Do(func() { close(sub.done) })
	}()

	return sub, nil
}

func (b *inprocBus) remove(sub *inprocSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}

func (b *inprocBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*inprocSubscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*inprocSubscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
	}
	return nil
}

type inprocSubscription struct {
	bus     *inprocBus
	topic   string
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan Message
	done    chan struct{}
	once    sync.Once
}

// deliver 串行消费投递队列，保证单个订阅内的消息顺序
func (s *inprocSubscription) deliver(logger clog.Logger) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.queue:
			if err := s.handler(m); err != nil {
				logger.Warn("inproc handler failed",
					clog.String("topic", m.Topic()),
					clog.Error(err),
				)
			}
		}
	}
}

func (s *inprocSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *inprocSubscription) Done() <-chan struct{} {
	return s.done
}

type inprocMessage struct {
	ctx     context.Context
	topic   string
	data    []byte
	headers Headers
	id      string
}

func (m *inprocMessage) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *inprocMessage) Topic() string    { return m.topic }
func (m *inprocMessage) Data() []byte     { return m.data }
func (m *inprocMessage) Headers() Headers { return m.headers.Clone() }
func (m *inprocMessage) ID() string       { return m.id }
