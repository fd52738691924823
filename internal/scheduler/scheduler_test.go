package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shinigamiapp/automirror/internal/scheduler"
)

type countingTicker struct {
	calls   int32
	delay   time.Duration
	running int32
	overlap int32
}

func (c *countingTicker) Tick(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		atomic.AddInt32(&c.overlap, 1)
	}
	atomic.AddInt32(&c.calls, 1)
	time.Sleep(c.delay)
	atomic.StoreInt32(&c.running, 0)
	return nil
}

func TestScheduler_RunsTicksNonOverlapping(t *testing.T) {
	scan := &countingTicker{delay: 20 * time.Millisecond}
	sched := scheduler.New(scan, 15*time.Millisecond, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()
	sched.Stop()

	assert.Zero(t, atomic.LoadInt32(&scan.overlap))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&scan.calls), int32(2))
}

func TestScheduler_StopWaitsForInFlightTick(t *testing.T) {
	scan := &countingTicker{delay: 60 * time.Millisecond}
	sched := scheduler.New(scan, 10*time.Millisecond, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	time.Sleep(15 * time.Millisecond)
	start := time.Now()
	sched.Stop()
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
