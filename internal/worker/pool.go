// Package worker runs fire-and-forget tasks off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/logger"
	"github.com/kailas-cloud/designdex/internal/metrics"
)

// Task is a unit of background work. It receives a context detached from the
// caller's cancellation and bounded by the pool's task timeout.
type Task func(ctx context.Context) error

// Pool is a bounded goroutine pool for best-effort tasks.
// Submissions never block: when the pool is saturated the task is dropped.
type Pool struct {
	pool    *ants.Pool
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

// New creates a pool with size workers; every task runs under timeout.
func New(size int, timeout time.Duration, log *zap.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{timeout: timeout, log: log}

	ap, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			p.log.Error("background task panicked", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.pool = ap
	return p, nil
}

// Go schedules fn. The request-scoped logger and values of ctx are kept,
// its cancellation is not.
func (p *Pool) Go(ctx context.Context, name string, fn Task) {
	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		tctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()

		if err := fn(tctx); err != nil {
			metrics.BackgroundTasksTotal.WithLabelValues(name, "error").Inc()
			logger.FromContext(detached).Warn("background task failed",
				zap.String("task", name), zap.Error(err))
			return
		}
		metrics.BackgroundTasksTotal.WithLabelValues(name, "ok").Inc()
	})
	if err != nil {
		p.wg.Done()
		metrics.BackgroundTasksTotal.WithLabelValues(name, "rejected").Inc()
		logger.FromContext(detached).Warn("background task rejected",
			zap.String("task", name), zap.Error(err))
	}
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release waits up to timeout for in-flight tasks, then frees the workers.
func (p *Pool) Release(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	if err := p.pool.ReleaseTimeout(timeout); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
		return fmt.Errorf("release worker pool: %w", err)
	}
	return nil
}
