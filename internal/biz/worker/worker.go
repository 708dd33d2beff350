// Package worker runs connection dependent side effects off the simulation
// tick, one at a time, at the lowest priority.
package worker

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yola1107/puppeteer/library/queue"
	"github.com/yola1107/puppeteer/library/xgo"
	"github.com/yola1107/puppeteer/log"
)

const (
	defaultIdle     = 50 * time.Millisecond
	defaultTTL      = time.Minute
	DefaultCapacity = 1024
)

type action struct {
	name     string
	fn       func(ctx context.Context) error
	postedAt time.Time
}

type Option func(*Worker)

// WithTTL sets how long an action may wait for a connection before it is dropped.
func WithTTL(ttl time.Duration) Option {
	return func(w *Worker) {
		if ttl > 0 {
			w.ttl = ttl
		}
	}
}

// WithCapacity bounds the pending actions; Post drops once it is reached.
func WithCapacity(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.capacity = n
		}
	}
}

func WithIdle(idle time.Duration) Option {
	return func(w *Worker) {
		if idle > 0 {
			w.idle = idle
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker holds actions while the connection is down and runs them in post
// order once it is up. Actions that waited longer than the TTL expire, also
// while disconnected, and at most capacity actions are pending.
type Worker struct {
	ready    func() bool
	ttl      time.Duration
	idle     time.Duration
	capacity int
	now      func() time.Time

	queue       *queue.Bounded[*action]
	dropLimiter *rate.Limiter
	ran         atomic.Int64
	failed      atomic.Int64
	expired     atomic.Int64
	dropped     atomic.Int64
}

// New builds a worker. ready reports whether the relay connection is open.
func New(ready func() bool, opts ...Option) *Worker {
	w := &Worker{
		ready:       ready,
		ttl:         defaultTTL,
		idle:        defaultIdle,
		capacity:    DefaultCapacity,
		now:         time.Now,
		dropLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	for _, o := range opts {
		o(w)
	}
	w.queue = queue.NewBounded[*action](w.capacity)
	return w
}

// Post never blocks. It reports false for a nil fn or a full queue.
func (w *Worker) Post(name string, fn func(ctx context.Context) error) bool {
	if fn == nil {
		return false
	}
	if !w.queue.TryPush(&action{name: name, fn: fn, postedAt: w.now()}) {
		w.dropped.Add(1)
		if w.dropLimiter.Allow() {
			log.Warnf("[worker] %d actions pending, dropping %q", w.capacity, name)
		}
		return false
	}
	return true
}

func (w *Worker) Len() int {
	return w.queue.Len()
}

func (w *Worker) Ran() int64     { return w.ran.Load() }
func (w *Worker) Failed() int64  { return w.failed.Load() }
func (w *Worker) Expired() int64 { return w.expired.Load() }
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

// Run loops until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	idle := time.NewTimer(w.idle)
	defer idle.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.Step(ctx) {
			runtime.Gosched()
			continue
		}
		idle.Reset(w.idle)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

// Step handles at most one action and reports whether one was taken off the
// queue. While the connection is down only expired actions leave the queue.
func (w *Worker) Step(ctx context.Context) bool {
	if w.ready != nil && !w.ready() {
		if n := w.expireStale(); n > 0 {
			log.Warnf("[worker] %d actions expired while disconnected", n)
		}
		return false
	}
	a, ok := w.queue.Pop()
	if !ok {
		return false
	}
	if age := w.now().Sub(a.postedAt); age > w.ttl {
		w.expired.Add(1)
		log.Warnf("[worker] %q expired after %s", a.name, age.Round(time.Millisecond))
		return true
	}
	w.run(ctx, a)
	return true
}

// expireStale drops actions older than the TTL from the head. Posts are in
// time order, so the first fresh action ends the sweep.
func (w *Worker) expireStale() int {
	n := 0
	for {
		a, ok := w.queue.Peek()
		if !ok || w.now().Sub(a.postedAt) <= w.ttl {
			return n
		}
		if _, ok := w.queue.Pop(); !ok {
			return n
		}
		w.expired.Add(1)
		n++
	}
}

func (w *Worker) run(ctx context.Context, a *action) {
	var err error
	ok := xgo.SafeCall(func() { err = a.fn(ctx) })
	switch {
	case !ok:
		w.failed.Add(1)
		log.Errorf("[worker] %q panicked", a.name)
	case err != nil:
		w.failed.Add(1)
		log.Warnf("[worker] %q failed: %v", a.name, err)
	default:
		w.ran.Add(1)
	}
}
