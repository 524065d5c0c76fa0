package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	p, err := New(4, time.Second, nil)
	require.NoError(t, err)
	defer func() { _ = p.Release(time.Second) }()

	var n atomic.Int32
	for range 10 {
		p.Go(context.Background(), "count", func(context.Context) error {
			n.Add(1)
			return nil
		})
	}
	p.Wait()
	assert.LessOrEqual(t, n.Load(), int32(10))
	assert.Positive(t, n.Load())
}

func TestPool_DetachedFromCallerCancel(t *testing.T) {
	p, err := New(1, time.Second, nil)
	require.NoError(t, err)
	defer func() { _ = p.Release(time.Second) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var taskErr error
	p.Go(ctx, "detached", func(tctx context.Context) error {
		taskErr = tctx.Err()
		return nil
	})
	p.Wait()
	assert.NoError(t, taskErr, "task context must not inherit caller cancellation")
}

func TestPool_TaskTimeout(t *testing.T) {
	p, err := New(1, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer func() { _ = p.Release(time.Second) }()

	var got error
	p.Go(context.Background(), "slow", func(tctx context.Context) error {
		<-tctx.Done()
		got = tctx.Err()
		return got
	})
	p.Wait()
	assert.True(t, errors.Is(got, context.DeadlineExceeded))
}

func TestPool_RejectsWhenSaturated(t *testing.T) {
	p, err := New(1, time.Second, nil)
	require.NoError(t, err)
	defer func() { _ = p.Release(time.Second) }()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Go(context.Background(), "blocker", func(context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started

	var ran atomic.Bool
	p.Go(context.Background(), "dropped", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	close(block)
	p.Wait()
	assert.False(t, ran.Load(), "non-blocking pool must drop tasks when full")
}
