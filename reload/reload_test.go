package reload

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/confhub/bus"
	"github.com/ceyewan/confhub/event"
	"github.com/ceyewan/confhub/history"
	"github.com/ceyewan/confhub/merge"
	"github.com/ceyewan/confhub/store"
	"github.com/ceyewan/confhub/testkit"
	"github.com/ceyewan/confhub/xerrors"
)

// 测试用的紧凑时间参数，语义与默认值一致
func fastConfig() *Config {
	return &Config{
		DebounceWindow: 80 * time.Millisecond,
		HandlerTimeout: time.Second,
		MaxRetries:     1,
		RetryDelay:     10 * time.Millisecond,
		HealthInterval: time.Hour,
	}
}

type fixture struct {
	store       store.Store
	bus         bus.Bus
	coordinator *Coordinator
}

func newFixture(t *testing.T, cfg *Config, opts ...Option) *fixture {
	t.Helper()
	database := testkit.NewSQLiteDB(t, &store.ConfigEntry{}, &history.ConfigHistory{})
	st, err := store.New(database)
	require.NoError(t, err)

	eventBus, err := bus.New(&bus.Config{Driver: bus.DriverInproc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eventBus.Close() })

	if cfg == nil {
		cfg = fastConfig()
	}
	coordinator, err := New(cfg, st, eventBus, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coordinator.Close() })

	return &fixture{store: st, bus: eventBus, coordinator: coordinator}
}

func (f *fixture) createEntry(t *testing.T, category, key, value string) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), &store.ConfigEntry{
		Category:    category,
		Key:         key,
		Value:       value,
		Environment: store.EnvProduction,
		IsActive:    true,
	}, store.Audit{Actor: "tester"}))
}

func (f *fixture) publishChange(t *testing.T, category, key string) {
	t.Helper()
	evt := event.NewUpdated(category, key, store.EnvProduction, "old", "new", "tester")
	data, err := evt.Marshal()
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(context.Background(), event.TopicChanges, data))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, nil)

	handler := func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
		return nil
	}

	tests := []struct {
		name string
		reg  Registration
	}{
		{"缺少服务名", Registration{Categories: []string{"smtp"}, Handler: handler}},
		{"缺少分类", Registration{ServiceName: "svc", Handler: handler}},
		{"缺少回调", Registration{ServiceName: "svc", Categories: []string{"smtp"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.coordinator.RegisterHandler(tt.reg), ErrInvalidInput)
		})
	}
}

func TestRegisterReplaceResetsStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer",
		Categories:  []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			return nil
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "tester"))
	assert.Equal(t, int64(1), f.coordinator.Stats()["mailer"].SuccessCount)

	// 同名重新注册后统计清零
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer",
		Categories:  []string{"smtp"},
		Priority:    5,
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			return nil
		},
	}))

	stats := f.coordinator.Stats()["mailer"]
	assert.Equal(t, int64(0), stats.SuccessCount)
	assert.Equal(t, 5, stats.Priority)

	f.coordinator.UnregisterHandler("mailer")
	assert.NotContains(t, f.coordinator.Stats(), "mailer")
}

func TestDebounceCollapsing(t *testing.T) {
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var dispatches atomic.Int64
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer",
		Categories:  []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			dispatches.Add(1)
			return nil
		},
	}))

	// 防抖窗口内的连续变更只触发一次重载
	for i := 0; i < 5; i++ {
		f.publishChange(t, "smtp", "host")
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, func() bool { return dispatches.Load() == 1 }, "expected exactly one dispatch")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), dispatches.Load())
}

func TestPerKeyMutualExclusion(t *testing.T) {
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	started := make(chan struct{})
	release := make(chan struct{})
	var dispatches atomic.Int64
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer",
		Categories:  []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			if dispatches.Add(1) == 1 {
				close(started)
				<-release
			}
			return nil
		},
	}))

	f.publishChange(t, "smtp", "host")
	<-started

	// 在途重载期间防抖到期的新触发被放弃
	f.publishChange(t, "smtp", "host")
	time.Sleep(200 * time.Millisecond)
	close(release)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), dispatches.Load())
}

func TestIndependentKeysRunConcurrently(t *testing.T) {
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")
	f.createEntry(t, "database", "dsn", "sqlite://")

	var categories sync.Map
	var dispatches atomic.Int64
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "observer",
		Categories:  []string{"smtp", "database"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			categories.Store(evt.Category, true)
			dispatches.Add(1)
			return nil
		},
	}))

	f.publishChange(t, "smtp", "host")
	f.publishChange(t, "database", "dsn")

	waitFor(t, func() bool { return dispatches.Load() == 2 }, "expected one dispatch per key")
	_, smtpSeen := categories.Load("smtp")
	_, dbSeen := categories.Load("database")
	assert.True(t, smtpSeen)
	assert.True(t, dbSeen)
}

func TestDispatchOrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "late", Categories: []string{"smtp"}, Priority: 20,
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			record("late")
			return nil
		},
	}))
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "broken", Categories: []string{"smtp"}, Priority: 10,
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			record("broken")
			return xerrors.New("boom")
		},
	}))
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "early", Categories: []string{"smtp"}, Priority: 1,
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			record("early")
			return nil
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "tester"))

	// 按优先级升序调度，失败的服务不影响后续服务
	mu.Lock()
	assert.Equal(t, []string{"early", "broken", "late"}, order)
	mu.Unlock()

	stats := f.coordinator.Stats()
	assert.Equal(t, int64(1), stats["early"].SuccessCount)
	assert.Equal(t, int64(1), stats["late"].SuccessCount)
	assert.Equal(t, int64(1), stats["broken"].ErrorCount)
	assert.Contains(t, stats["broken"].LastError, "boom")
}

func TestEnvironmentFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var calls atomic.Int64
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName:  "staging-only",
		Categories:   []string{"smtp"},
		Environments: []string{store.EnvStaging},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			calls.Add(1)
			return nil
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "tester"))
	assert.Equal(t, int64(0), calls.Load())

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvStaging, "tester"))
	assert.Equal(t, int64(1), calls.Load())
}

func TestRetryThenGiveUp(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.MaxRetries = 3
	f := newFixture(t, cfg)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var flakyCalls, brokenCalls atomic.Int64
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "flaky", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			if flakyCalls.Add(1) < 3 {
				return xerrors.New("transient")
			}
			return nil
		},
	}))
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "broken", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			brokenCalls.Add(1)
			return xerrors.New("permanent")
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "tester"))

	// 第三次尝试成功，统计按整次重载计一次成功
	assert.Equal(t, int64(3), flakyCalls.Load())
	assert.Equal(t, int64(1), f.coordinator.Stats()["flaky"].SuccessCount)
	assert.Equal(t, int64(0), f.coordinator.Stats()["flaky"].ErrorCount)

	// 重试耗尽后失败也只计一次
	assert.Equal(t, int64(3), brokenCalls.Load())
	assert.Equal(t, int64(1), f.coordinator.Stats()["broken"].ErrorCount)
}

func TestHandlerTimeout(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.HandlerTimeout = 50 * time.Millisecond
	f := newFixture(t, cfg)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "slow", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "tester"))

	stats := f.coordinator.Stats()["slow"]
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Contains(t, stats.LastError, "timeout")
}

func TestForceReload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var mu sync.Mutex
	var got event.ChangeEvent
	var values map[string]any
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, v map[string]any, evt event.ChangeEvent) error {
			mu.Lock()
			got = evt
			values = v
			mu.Unlock()
			return nil
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "alice"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "*", got.Key)
	assert.Equal(t, "force reload", got.Reason)
	assert.Equal(t, "alice", got.Actor)
	assert.Equal(t, "smtp.example.com", values["host"])

	assert.ErrorIs(t, f.coordinator.ForceReload(ctx, "", store.EnvProduction, "alice"), ErrInvalidInput)
}

// failingResolver 读值永远失败的解析器
type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, category, environment string) (*merge.Snapshot, error) {
	return nil, xerrors.New("backend down")
}

func (failingResolver) ResolveValue(ctx context.Context, category, key, environment string) (any, string, error) {
	return nil, "", xerrors.New("backend down")
}

func (failingResolver) Invalidate(ctx context.Context, category, environment string) error {
	return nil
}

func TestForceReloadPropagatesReadFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, WithResolver(failingResolver{}))

	err := f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "alice")
	assert.ErrorIs(t, err, ErrValuesUnavailable)
}

func TestReloadEventsPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var mu sync.Mutex
	var phases []event.ReloadPhase
	_, err := f.bus.Subscribe(ctx, event.TopicReload, func(msg bus.Message) error {
		evt, uerr := event.UnmarshalReload(msg.Data())
		if uerr != nil {
			return uerr
		}
		mu.Lock()
		phases = append(phases, evt.Phase)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			return nil
		},
	}))

	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "alice"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(phases) == 2
	}, "expected triggered and completed events")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, event.ReloadTriggered, phases[0])
	assert.Equal(t, event.ReloadCompleted, phases[1])
}

func TestHandlerFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var mu sync.Mutex
	var events []event.ReloadEvent
	_, err := f.bus.Subscribe(ctx, event.TopicReload, func(msg bus.Message) error {
		evt, uerr := event.UnmarshalReload(msg.Data())
		if uerr != nil {
			return uerr
		}
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "steady", Categories: []string{"smtp"}, Priority: 1,
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			return nil
		},
	}))
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "broken", Categories: []string{"smtp"}, Priority: 2,
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			return xerrors.New("boom")
		},
	}))

	// Handler 失败不把整次重载标记为 failed，完成事件携带两类计数
	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "alice"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, "expected triggered and completed events")

	mu.Lock()
	defer mu.Unlock()
	done := events[1]
	assert.Equal(t, event.ReloadCompleted, done.Phase)
	assert.Equal(t, 1, done.SuccessCount)
	assert.Equal(t, 1, done.ErrorCount)
	require.Len(t, done.Errors, 1)
	assert.Contains(t, done.Errors[0], "broken")
}

func TestHealthClassification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createEntry(t, "smtp", "host", "smtp.example.com")

	var fail atomic.Bool
	require.NoError(t, f.coordinator.RegisterHandler(Registration{
		ServiceName: "mailer", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			if fail.Load() {
				return xerrors.New("boom")
			}
			return nil
		},
	}))

	report := f.coordinator.Health()
	assert.Equal(t, StatusHealthy, report.Overall)

	// 一次成功一次失败：降级
	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "t"))
	fail.Store(true)
	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "t"))

	report = f.coordinator.Health()
	assert.Equal(t, StatusDegraded, report.Overall)
	require.Len(t, report.Services, 1)
	assert.Equal(t, StatusDegraded, report.Services[0].Status)

	// 失败多于成功：不健康
	require.NoError(t, f.coordinator.ForceReload(ctx, "smtp", store.EnvProduction, "t"))
	report = f.coordinator.Health()
	assert.Equal(t, StatusUnhealthy, report.Overall)

	f.coordinator.ResetStats()
	report = f.coordinator.Health()
	assert.Equal(t, StatusHealthy, report.Overall)
}

func TestCloseStopsCoordinator(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.coordinator.Close())
	require.NoError(t, f.coordinator.Close())

	err := f.coordinator.RegisterHandler(Registration{
		ServiceName: "late", Categories: []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			return nil
		},
	})
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t,
		f.coordinator.ForceReload(context.Background(), "smtp", store.EnvProduction, "t"),
		ErrClosed)
}
