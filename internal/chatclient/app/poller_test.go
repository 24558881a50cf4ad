package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoller_ImmediateAndPeriodic(t *testing.T) {
	var n int32
	p := NewPoller(20*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&n, 1)
	})

	p.Start(context.Background(), true)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) >= 1 }, 150*time.Millisecond, time.Millisecond)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) >= 3 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	stopped := atomic.LoadInt32(&n)
	time.Sleep(60 * time.Millisecond)
	// at most one tick spawned right before Stop may still land
	assert.LessOrEqual(t, atomic.LoadInt32(&n), stopped+1)
}

func TestPoller_SlowTickDoesNotBlock(t *testing.T) {
	var started int32
	block := make(chan struct{})
	p := NewPoller(10*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&started, 1)
		select {
		case <-block:
		case <-ctx.Done():
		}
	})

	p.Start(context.Background(), false)
	defer p.Stop()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&started) >= 3 }, time.Second, 5*time.Millisecond)
	close(block)
}

func TestPoller_RestartAndStopIdempotent(t *testing.T) {
	var n int32
	p := NewPoller(time.Hour, func(context.Context) { atomic.AddInt32(&n, 1) })

	p.Stop()
	p.Start(context.Background(), false)
	p.Start(context.Background(), true)
	assert.True(t, p.Running())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.Running())
}

func TestPoller_StopWaitsForTicks(t *testing.T) {
	var finished int32
	entered := make(chan struct{}, 1)
	p := NewPoller(time.Hour, func(ctx context.Context) {
		entered <- struct{}{}
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})

	p.Start(context.Background(), true)
	<-entered
	p.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}
