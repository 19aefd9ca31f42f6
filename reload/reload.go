// Package reload 提供配置热重载协调器。
//
// 协调器订阅配置变更事件，对每个 (category, environment) 组合做
// 防抖：窗口内的连续变更只触发一次重载。重载时按调度时刻重新读取
// 当前配置值，按优先级依次调用已注册服务的回调，单个回调有超时与
// 固定间隔重试，失败彼此隔离。同一组合的重载串行，不同组合并发。
//
// 基本使用：
//
//	coordinator, _ := reload.New(&reload.Config{}, st, eventBus,
//	    reload.WithResolver(resolver), reload.WithLogger(logger))
//	defer coordinator.Close()
//
//	_ = coordinator.RegisterHandler(reload.Registration{
//	    ServiceName: "mailer",
//	    Categories:  []string{"smtp"},
//	    Priority:    10,
//	    Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
//	        return mailer.Reconfigure(values)
//	    },
//	})
package reload

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ceyewan/confhub/bus"
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/event"
	"github.com/ceyewan/confhub/merge"
	"github.com/ceyewan/confhub/metrics"
	"github.com/ceyewan/confhub/store"
	"github.com/ceyewan/confhub/xerrors"
)

// Config 协调器配置
type Config struct {
	// DebounceWindow 防抖窗口 (默认 1s)
	DebounceWindow time.Duration `json:"debounce_window" yaml:"debounce_window" mapstructure:"debounce_window"`

	// HandlerTimeout 单次回调超时 (默认 30s)
	HandlerTimeout time.Duration `json:"handler_timeout" yaml:"handler_timeout" mapstructure:"handler_timeout"`

	// MaxRetries 回调失败的重试次数上限 (默认 3)
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RetryDelay 重试间隔 (默认 1s)
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`

	// HealthInterval 健康检查周期 (默认 60s)
	HealthInterval time.Duration `json:"health_interval" yaml:"health_interval" mapstructure:"health_interval"`
}

func (c *Config) setDefaults() {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = time.Minute
	}
}

// Option 组件可选依赖
type Option func(*options)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	resolver merge.Resolver
}

// WithLogger 注入日志器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("reload")
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

// WithResolver 注入合并解析器。
// 注入后重载读取合并值，否则只读配置存储的当前值。
func WithResolver(r merge.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// keyState 一个 (category, environment) 组合的调度状态。
// pending 和 inFlight 是两个独立的状态位：前者表示防抖计时中，
// 后者表示重载执行中，两者可以同时为真。
type keyState struct {
	pending  *time.Timer
	inFlight bool
}

type registeredHandler struct {
	reg Registration
	seq uint64
}

// Coordinator 热重载协调器。
// 一个进程通常只创建一个实例，通过句柄显式传递。
type Coordinator struct {
	cfg      *Config
	store    store.Store
	resolver merge.Resolver
	bus      bus.Bus
	logger   clog.Logger

	reloadCounter metrics.Counter
	durationHist  metrics.Histogram

	mu       sync.Mutex
	handlers map[string]*registeredHandler
	stats    map[string]*HandlerStats
	keys     map[string]*keyState
	seq      uint64
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	sub    bus.Subscription
	wg     sync.WaitGroup
}

// New 创建协调器并立即订阅变更事件、启动健康检查
func New(cfg *Config, st store.Store, eventBus bus.Bus, opts ...Option) (*Coordinator, error) {
	if st == nil {
		return nil, xerrors.Wrap(ErrInvalidInput, "store is required")
	}
	if eventBus == nil {
		return nil, xerrors.Wrap(ErrInvalidInput, "bus is required")
	}
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
	if o.meter == nil {
		o.meter = metrics.Discard()
	}

	reloadCounter, err := o.meter.Counter("confhub_reload_total",
		"Total reload dispatches by category and status")
	if err != nil {
		return nil, xerrors.Wrap(err, "create reload counter")
	}
	durationHist, err := o.meter.Histogram("confhub_reload_duration_seconds",
		"Reload dispatch duration", metrics.WithUnit("s"))
	if err != nil {
		return nil, xerrors.Wrap(err, "create duration histogram")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:           cfg,
		store:         st,
		resolver:      o.resolver,
		bus:           eventBus,
		logger:        o.logger,
		reloadCounter: reloadCounter,
		durationHist:  durationHist,
		handlers:      map[string]*registeredHandler{},
		stats:         map[string]*HandlerStats{},
		keys:          map[string]*keyState{},
		ctx:           ctx,
		cancel:        cancel,
	}

	sub, err := eventBus.Subscribe(ctx, event.TopicChanges, c.onChange)
	if err != nil {
		cancel()
		return nil, xerrors.Wrap(err, "subscribe change events")
	}
	c.sub = sub

	c.wg.Add(1)
	go c.healthLoop()

	c.logger.Info("reload coordinator started",
		clog.Duration("debounce_window", cfg.DebounceWindow),
		clog.Duration("handler_timeout", cfg.HandlerTimeout))
	return c, nil
}

// RegisterHandler 注册服务，同名注册被替换且统计清零
func (c *Coordinator) RegisterHandler(reg Registration) error {
	if err := reg.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.seq++
	c.handlers[reg.ServiceName] = &registeredHandler{reg: reg, seq: c.seq}
	c.stats[reg.ServiceName] = &HandlerStats{
		ServiceName: reg.ServiceName,
		Priority:    reg.Priority,
	}

	c.logger.Info("handler registered",
		clog.String("service", reg.ServiceName),
		clog.Int("priority", reg.Priority),
		clog.Any("categories", reg.Categories))
	return nil
}

// UnregisterHandler 移除服务及其统计
func (c *Coordinator) UnregisterHandler(serviceName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, serviceName)
	delete(c.stats, serviceName)
	c.logger.Info("handler unregistered", clog.String("service", serviceName))
}

// onChange 变更事件入口，对事件对应的组合做防抖调度
func (c *Coordinator) onChange(msg bus.Message) error {
	evt, err := event.UnmarshalChange(msg.Data())
	if err != nil {
		c.logger.Warn("malformed change event dropped", clog.Error(err))
		return nil
	}
	c.schedule(evt)
	return nil
}

func (c *Coordinator) schedule(evt event.ChangeEvent) {
	key := scheduleKey(evt.Category, evt.Environment)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	ks := c.keyStateLocked(key)
	if ks.pending != nil {
		ks.pending.Stop()
	}
	ks.pending = time.AfterFunc(c.cfg.DebounceWindow, func() {
		c.onDebounceFired(key, evt)
	})
}

// onDebounceFired 防抖窗口结束。组合已有在途重载时放弃本次触发，
// 在途重载会在调度时刻重新读取最新值。
func (c *Coordinator) onDebounceFired(key string, evt event.ChangeEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ks := c.keyStateLocked(key)
	ks.pending = nil
	if ks.inFlight {
		c.mu.Unlock()
		c.logger.Debug("reload already in flight, trigger skipped",
			clog.String("key", key))
		return
	}
	ks.inFlight = true
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	defer c.clearInFlight(key)
	_ = c.dispatch(c.ctx, evt)
}

// ForceReload 合成 key 为 "*" 的变更事件并同步执行整条调度路径。
// 读取配置值失败时错误返回给调用方。
func (c *Coordinator) ForceReload(ctx context.Context, category, environment, actor string) error {
	if category == "" || environment == "" {
		return xerrors.Wrap(ErrInvalidInput, "category and environment are required")
	}

	key := scheduleKey(category, environment)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ks := c.keyStateLocked(key)
	acquired := !ks.inFlight
	if acquired {
		ks.inFlight = true
	}
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	if acquired {
		defer c.clearInFlight(key)
	}

	evt := event.NewUpdated(category, "*", environment, "", "", actor)
	evt.Reason = "force reload"

	c.logger.Info("force reload requested",
		clog.String("category", category),
		clog.String("environment", environment),
		clog.String("actor", actor))
	return c.dispatch(ctx, evt)
}

// dispatch 执行一次完整重载：读值、筛选、按序调用、发布生命周期事件
func (c *Coordinator) dispatch(ctx context.Context, evt event.ChangeEvent) error {
	start := time.Now()

	triggered := event.NewReload(event.ReloadTriggered, evt.Category, evt.Key)
	c.publishReload(ctx, evt.Category, &triggered)

	values, err := c.readValues(ctx, evt.Category, evt.Environment)
	if err != nil {
		failed := event.NewReload(event.ReloadFailed, evt.Category, evt.Key)
		failed.ErrorCount = 1
		failed.Errors = []string{err.Error()}
		failed.Duration = time.Since(start)
		c.publishReload(ctx, evt.Category, &failed)

		c.reloadCounter.Inc(ctx,
			metrics.L("category", evt.Category), metrics.L("status", "error"))
		c.logger.Error("reload aborted, values unavailable",
			clog.String("category", evt.Category),
			clog.String("environment", evt.Environment),
			clog.Error(err))
		return xerrors.Wrap(ErrValuesUnavailable, err.Error())
	}

	regs := c.selectHandlers(evt.Category, evt.Environment)

	var successCount, errorCount int
	var failures []string
	for _, reg := range regs {
		invokeErr := c.invoke(ctx, reg, values, evt)
		c.recordResult(reg.ServiceName, invokeErr)
		if invokeErr != nil {
			errorCount++
			failures = append(failures, reg.ServiceName+": "+invokeErr.Error())
			c.logger.Warn("handler reload failed",
				clog.String("service", reg.ServiceName),
				clog.String("category", evt.Category),
				clog.Error(invokeErr))
			continue
		}
		successCount++
	}

	// Handler 失败被隔离在各自的统计里，重载本身照常完成；
	// failed 阶段只用于取值失败的中止路径
	status := "ok"
	if errorCount > 0 {
		status = "error"
	}

	done := event.NewReload(event.ReloadCompleted, evt.Category, evt.Key)
	done.SuccessCount = successCount
	done.ErrorCount = errorCount
	done.Errors = failures
	done.Duration = time.Since(start)
	c.publishReload(ctx, evt.Category, &done)

	c.reloadCounter.Inc(ctx,
		metrics.L("category", evt.Category), metrics.L("status", status))
	c.durationHist.Record(ctx, time.Since(start).Seconds(),
		metrics.L("category", evt.Category))

	c.logger.Info("reload finished",
		clog.String("category", evt.Category),
		clog.String("environment", evt.Environment),
		clog.Int("success", successCount),
		clog.Int("errors", errorCount),
		clog.Duration("duration", time.Since(start)))
	return nil
}

func (c *Coordinator) readValues(ctx context.Context, category, environment string) (map[string]any, error) {
	if c.resolver != nil {
		snapshot, err := c.resolver.Resolve(ctx, category, environment)
		if err != nil {
			return nil, err
		}
		return snapshot.Values, nil
	}
	return c.store.GetValues(ctx, category, environment)
}

// selectHandlers 筛选匹配的注册并按优先级和注册顺序排序
func (c *Coordinator) selectHandlers(category, environment string) []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*registeredHandler
	for _, h := range c.handlers {
		if h.reg.matches(category, environment) {
			matched = append(matched, h)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].reg.Priority != matched[j].reg.Priority {
			return matched[i].reg.Priority < matched[j].reg.Priority
		}
		return matched[i].seq < matched[j].seq
	})

	regs := make([]Registration, len(matched))
	for i, h := range matched {
		regs[i] = h.reg
	}
	return regs
}

func (c *Coordinator) invoke(ctx context.Context, reg Registration, values map[string]any, evt event.ChangeEvent) error {
	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = c.cfg.HandlerTimeout
	}
	attempts := reg.MaxRetries
	if attempts <= 0 {
		attempts = c.cfg.MaxRetries
	}
	delay := reg.RetryDelay
	if delay <= 0 {
		delay = c.cfg.RetryDelay
	}

	return withRetry(ctx, attempts, delay, func() error {
		return withTimeout(ctx, timeout, func(tctx context.Context) error {
			return reg.Handler(tctx, values, evt)
		})
	})
}

// recordResult 更新统计，计数以整次重载为单位
func (c *Coordinator) recordResult(serviceName string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stats[serviceName]
	if !ok {
		return
	}
	s.LastReloadAt = time.Now()
	if err != nil {
		s.ErrorCount++
		s.LastError = err.Error()
		return
	}
	s.SuccessCount++
	s.LastError = ""
}

// Stats 返回全部服务的统计快照
func (c *Coordinator) Stats() map[string]HandlerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]HandlerStats, len(c.stats))
	for name, s := range c.stats {
		snapshot := *s
		snapshot.Status = snapshot.classify()
		out[name] = snapshot
	}
	return out
}

// ResetStats 清零所有服务的计数，保留注册
func (c *Coordinator) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, s := range c.stats {
		c.stats[name] = &HandlerStats{
			ServiceName: name,
			Priority:    s.Priority,
		}
	}
	c.logger.Info("reload stats reset")
}

func (c *Coordinator) publishReload(ctx context.Context, category string, evt *event.ReloadEvent) {
	data, err := evt.Marshal()
	if err != nil {
		c.logger.Warn("reload event marshal failed", clog.Error(err))
		return
	}
	for _, topic := range []string{event.TopicReload, event.ReloadCategoryTopic(category)} {
		if err := c.bus.Publish(ctx, topic, data); err != nil {
			c.logger.Warn("reload event publish failed",
				clog.String("topic", topic), clog.Error(err))
		}
	}
}

func (c *Coordinator) keyStateLocked(key string) *keyState {
	ks, ok := c.keys[key]
	if !ok {
		ks = &keyState{}
		c.keys[key] = ks
	}
	return ks
}

func (c *Coordinator) clearInFlight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ks, ok := c.keys[key]; ok {
		ks.inFlight = false
	}
}

// Close 取消全部防抖计时器，清空注册与统计，等待在途重载结束
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, ks := range c.keys {
		if ks.pending != nil {
			ks.pending.Stop()
			ks.pending = nil
		}
	}
	c.handlers = map[string]*registeredHandler{}
	c.stats = map[string]*HandlerStats{}
	c.mu.Unlock()

	c.cancel()
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.wg.Wait()

	c.logger.Info("reload coordinator closed")
	return nil
}

func scheduleKey(category, environment string) string {
	return category + "/" + environment
}
