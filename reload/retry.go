package reload

import (
	"context"
	"time"

	"github.com/ceyewan/confhub/xerrors"
)

// withTimeout 在超时约束下执行 fn。
// fn 自己不响应取消时调用方不再等待，fn 的 goroutine 自行结束。
func withTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if xerrors.Is(tctx.Err(), context.DeadlineExceeded) {
			return xerrors.Wrapf(ErrHandlerTimeout, "after %s", timeout)
		}
		return tctx.Err()
	}
}

// withRetry 以固定间隔重试 fn，最多 attempts 次。
// ctx 取消时停止重试并返回最后一次错误与取消原因的组合。
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return xerrors.Join(lastErr, ctx.Err())
		}
	}
	return xerrors.Wrapf(lastErr, "after %d attempts", attempts)
}
