package work

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yola1107/puppeteer/log"
)

func init() {
	log.SetLogger(log.NewStdLogger(os.Stdout))
}

func TestPool(t *testing.T) {
	p := NewPool(2)
	require.NoError(t, p.Start())
	defer p.Stop()

	t.Run("start twice", func(t *testing.T) {
		require.NoError(t, p.Start())
	})

	t.Run("post", func(t *testing.T) {
		done := make(chan struct{})
		p.Post(func() { close(done) })
		waitForChannel(t, done, time.Second, "job not finished")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		done := make(chan struct{})
		p.Post(func() {
			defer close(done)
			panic("oops")
		})
		waitForChannel(t, done, time.Second, "panic job did not finish")

		again := make(chan struct{})
		p.Post(func() { close(again) })
		waitForChannel(t, again, time.Second, "pool unusable after panic")
	})

	t.Run("status", func(t *testing.T) {
		st := p.Status()
		require.Equal(t, 2, st.Capacity)
		require.Equal(t, st.Capacity-st.Running, st.Free)
	})

	t.Run("stopped pool still runs jobs", func(t *testing.T) {
		p.Stop()
		require.Equal(t, PoolStatus{}, p.Status())

		done := make(chan struct{})
		p.Post(func() { close(done) })
		waitForChannel(t, done, time.Second, "detached job did not run")
		require.NoError(t, p.Start())
	})
}

func TestWheelSchedulerEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewWheelScheduler(WithContext(ctx))
	defer s.Stop()

	var count atomic.Int32
	done := make(chan struct{})
	id := s.Every(20*time.Millisecond, func() {
		if count.Add(1) == 3 {
			close(done)
		}
	})
	require.Positive(t, id)
	waitForChannel(t, done, time.Second, "periodic task timed out")

	s.Cancel(id)
	time.Sleep(30 * time.Millisecond)
	prev := count.Load()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, prev, count.Load(), "task continued after cancel")
}

func TestWheelSchedulerStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewWheelScheduler(WithContext(ctx))

	var ran atomic.Bool
	s.Every(50*time.Millisecond, func() { ran.Store(true) })
	cancel()
	time.Sleep(150 * time.Millisecond)
	require.False(t, ran.Load(), "task ran after context cancel")
	require.Equal(t, int64(-1), s.Every(10*time.Millisecond, func() {}))
}

func TestStoreRunsPeriodicOnPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := NewStore(ctx, 4)
	require.NoError(t, ws.Start())
	defer ws.Stop()
	require.Equal(t, 4, ws.Status().Capacity)

	var ticks atomic.Int32
	done := make(chan struct{})
	ws.Every(15*time.Millisecond, func() {
		if ticks.Add(1) == 2 {
			close(done)
		}
	})
	waitForChannel(t, done, time.Second, "periodic task did not fire on pool")
}

func waitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, failMsg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(failMsg)
	}
}
