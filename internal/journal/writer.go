package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	defaultQueueCapacity = 256
	writeRetries         = 2
	writeRetryDelay      = 300 * time.Millisecond
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serialises database writes on one goroutine and retries
// failed ones a couple of times before dropping them.
type WriterQueue struct {
	logger     *slog.Logger
	queue      chan writeCmd
	retryDelay time.Duration
	dropped    atomic.Int64
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WriterQueue{
		logger:     logger,
		queue:      make(chan writeCmd, capacity),
		retryDelay: writeRetryDelay,
	}
}

// Enqueue schedules fn. A full queue drops the write rather than stall the
// bus listener feeding it.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) bool {
	select {
	case w.queue <- writeCmd{name: name, fn: fn}:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("journal queue full, write dropped", "cmd", name)
		return false
	}
}

// Dropped counts writes lost to a full queue or exhausted retries.
func (w *WriterQueue) Dropped() int64 {
	return w.dropped.Load()
}

func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
			}
		}
	}()
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.retryDelay), writeRetries),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		attempt++
		return cmd.fn(ctx)
	}, policy, func(err error, next time.Duration) {
		w.logger.Warn("journal write failed", "cmd", cmd.name, "attempt", attempt, "retry_in", next, "error", err)
	})
	if err != nil {
		w.dropped.Add(1)
		w.logger.Error("journal write dropped", "cmd", cmd.name, "attempts", attempt, "error", err)
	}
}
