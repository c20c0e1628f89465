package retryutil

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultRetryDelay   = 2 * time.Second
	defaultRetryTimeout = 12 * time.Second
)

// AsyncRetry runs fn once after delay in a new goroutine. The attempt is
// abandoned if parent is cancelled before it starts. The returned channel is
// closed when the goroutine exits.
func AsyncRetry(parent context.Context, logger *slog.Logger, name string, delay, timeout time.Duration, fn func(ctx context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	if fn == nil {
		close(done)
		return done
	}
	if parent == nil {
		parent = context.Background()
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	if timeout <= 0 {
		timeout = defaultRetryTimeout
	}
	if logger != nil {
		logger.Info(name+"_retry_scheduled", "delay", delay.String(), "timeout", timeout.String())
	}
	go func() {
		defer close(done)
		timer := time.NewTimer(delay)
		select {
		case <-parent.Done():
			timer.Stop()
			if logger != nil {
				logger.Info(name+"_retry_cancelled", "error", parent.Err().Error())
			}
			return
		case <-timer.C:
		}
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			if logger != nil {
				logger.Warn(name+"_retry_failed", "error", err.Error())
			}
			return
		}
		if logger != nil {
			logger.Info(name + "_retry_ok")
		}
	}()
	return done
}
