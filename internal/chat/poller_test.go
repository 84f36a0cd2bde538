package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerTicksUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(5*time.Millisecond, func(ctx context.Context) { ticks.Add(1) })

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	n := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())

	// second stop is a no-op
	p.Stop()
}

func TestPollerStopCancelsInFlightTick(t *testing.T) {
	entered := make(chan struct{})
	var cancelled atomic.Bool
	p := NewPoller(time.Millisecond, func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	})

	p.Start(context.Background())
	<-entered
	p.Stop()
	assert.True(t, cancelled.Load())
}

func TestPollerStopBeforeStart(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(time.Millisecond, func(ctx context.Context) { ticks.Add(1) })

	p.Stop()
	p.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), ticks.Load())
}

func TestPollerParentContext(t *testing.T) {
	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(2*time.Millisecond, func(ctx context.Context) { ticks.Add(1) })

	p.Start(ctx)
	assert.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	p.Stop()
	n := ticks.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())
}
