package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestHoldsWhileDisconnected(t *testing.T) {
	var open atomic.Bool
	w := New(open.Load)

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, w.Post("a", func(context.Context) error {
			got = append(got, i)
			return nil
		}))
	}
	assert.False(t, w.Post("nil", nil))

	assert.False(t, w.Step(context.Background()))
	assert.Equal(t, 3, w.Len(), "nothing is dequeued while disconnected")

	open.Store(true)
	for w.Step(context.Background()) {
	}
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, int64(3), w.Ran())
	assert.Zero(t, w.Len())
}

func TestExpiresStaleActions(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	var open atomic.Bool
	w := New(open.Load, WithTTL(time.Minute), WithClock(c.Now))

	ran := 0
	w.Post("stale", func(context.Context) error { ran++; return nil })
	c.Advance(50 * time.Second)
	w.Post("fresh", func(context.Context) error { ran++; return nil })
	c.Advance(20 * time.Second)

	open.Store(true)
	assert.True(t, w.Step(context.Background()))
	assert.True(t, w.Step(context.Background()))
	assert.False(t, w.Step(context.Background()))

	assert.Equal(t, 1, ran)
	assert.Equal(t, int64(1), w.Expired())
}

func TestExpiresWhileDisconnected(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	w := New(func() bool { return false },
		WithTTL(time.Second),
		WithCapacity(200_000),
		WithClock(c.Now),
	)

	for i := 0; i < 100_000; i++ {
		require.True(t, w.Post("portrait", func(context.Context) error { return nil }))
	}
	assert.False(t, w.Step(context.Background()))
	assert.Equal(t, 100_000, w.Len(), "fresh actions are held")

	c.Advance(time.Hour)
	w.Post("fresh", func(context.Context) error { return nil })
	assert.False(t, w.Step(context.Background()))
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, int64(100_000), w.Expired())
	assert.Zero(t, w.Ran())
}

func TestDropsWhenFull(t *testing.T) {
	w := New(func() bool { return false }, WithCapacity(3))
	for i := 0; i < 3; i++ {
		require.True(t, w.Post("grid", func(context.Context) error { return nil }))
	}
	assert.False(t, w.Post("grid", func(context.Context) error { return nil }))
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, int64(1), w.Dropped())
}

func TestFailuresDoNotStopLoop(t *testing.T) {
	w := New(func() bool { return true }, WithIdle(time.Millisecond))

	done := make(chan struct{})
	w.Post("panic", func(context.Context) error { panic("boom") })
	w.Post("error", func(context.Context) error { return errors.New("relay said no") })
	w.Post("ok", func(context.Context) error { close(done); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stalled after a failing action")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int64(2), w.Failed())
	assert.Equal(t, int64(1), w.Ran())
}
