package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInprocBus(t *testing.T) Bus {
	t.Helper()
	b, err := New(&Config{Driver: DriverInproc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestInprocPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := newInprocBus(t)

	var received atomic.Int32
	var gotData atomic.Value
	_, err := b.Subscribe(ctx, "config.changes", func(msg Message) error {
		gotData.Store(string(msg.Data()))
		received.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "config.changes", []byte("payload")))

	waitFor(t, func() bool { return received.Load() == 1 }, "message not delivered")
	assert.Equal(t, "payload", gotData.Load())
}

func TestInprocTopicIsolation(t *testing.T) {
	ctx := context.Background()
	b := newInprocBus(t)

	var onA, onB atomic.Int32
	_, err := b.Subscribe(ctx, "config.changes.database", func(Message) error {
		onA.Add(1)
		return nil
	})
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "config.changes.app", func(Message) error {
		onB.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "config.changes.database", []byte("x")))

	waitFor(t, func() bool { return onA.Load() == 1 }, "database subscriber missed message")
	assert.Equal(t, int32(0), onB.Load())
}

func TestInprocOrderedDelivery(t *testing.T) {
	ctx := context.Background()
	b := newInprocBus(t)

	var mu sync.Mutex
	var got []string
	_, err := b.Subscribe(ctx, "t", func(msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(msg.Data()))
		return nil
	})
	require.NoError(t, err)

	want := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		payload := fmt.Sprintf("msg-%02d", i)
		want = append(want, payload)
		require.NoError(t, b.Publish(ctx, "t", []byte(payload)))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, "not all messages delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestInprocHeaders(t *testing.T) {
	ctx := context.Background()
	b := newInprocBus(t)

	var got atomic.Value
	_, err := b.Subscribe(ctx, "t", func(msg Message) error {
		got.Store(msg.Headers().Get("actor"))
		return nil
	})
	require.NoError(t, err)

	h := Headers{}
	h.Set("actor", "alice")
	require.NoError(t, b.Publish(ctx, "t", nil, WithHeaders(h)))

	waitFor(t, func() bool { return got.Load() != nil }, "message not delivered")
	assert.Equal(t, "alice", got.Load())
}

func TestInprocUnsubscribe(t *testing.T) {
	ctx := context.Background()
	b := newInprocBus(t)

	var received atomic.Int32
	sub, err := b.Subscribe(ctx, "t", func(Message) error {
		received.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}

	require.NoError(t, b.Publish(ctx, "t", []byte("x")))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), received.Load())
}

func TestInprocPanicRecovered(t *testing.T) {
	ctx := context.Background()
	b := newInprocBus(t)

	var after atomic.Int32
	_, err := b.Subscribe(ctx, "t", func(Message) error {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "t", func(Message) error {
		after.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t", []byte("x")))
	waitFor(t, func() bool { return after.Load() == 1 }, "healthy subscriber missed message")
}

func TestInprocClose(t *testing.T) {
	ctx := context.Background()
	b, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(ctx, "t", nil), ErrClosed)
	_, err = b.Subscribe(ctx, "t", func(Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNATSCoreRequiresConnector(t *testing.T) {
	_, err := New(&Config{Driver: DriverNATSCore})
	assert.ErrorIs(t, err, ErrConfig)
}

type fakeMessage struct {
	ctx   context.Context
	topic string
}

func (m *fakeMessage) Context() context.Context { return m.ctx }
func (m *fakeMessage) Topic() string            { return m.topic }
func (m *fakeMessage) Data() []byte             { return nil }
func (m *fakeMessage) Headers() Headers         { return nil }
func (m *fakeMessage) ID() string               { return "" }

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(msg Message) error {
				order = append(order, name)
				return next(msg)
			}
		}
	}

	handler := Chain(mw("first"), mw("second"))(func(Message) error {
		order = append(order, "handler")
		return nil
	})

	require.NoError(t, handler(&fakeMessage{ctx: context.Background()}))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	handler := WithRetry(RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}, nil)(func(Message) error {
		attempts++
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, handler(&fakeMessage{ctx: context.Background(), topic: "t"}))
	assert.Equal(t, 3, attempts)
}

func TestWithRetryGivesUp(t *testing.T) {
	attempts := 0
	handler := WithRetry(RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2.0,
	}, nil)(func(Message) error {
		attempts++
		return assert.AnError
	})

	assert.ErrorIs(t, handler(&fakeMessage{ctx: context.Background(), topic: "t"}), assert.AnError)
	assert.Equal(t, 3, attempts)
}
