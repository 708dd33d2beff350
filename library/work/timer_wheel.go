package work

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"

	"github.com/yola1107/puppeteer/log"
)

const (
	defaultWheelTick = 10 * time.Millisecond
	defaultWheelSize = 64
	maxIntervalJumps = 10000
)

// every 按上次触发点推进, 不随执行耗时漂移
type every struct {
	interval time.Duration
	last     atomic.Value // time.Time
}

func (p *every) Next(t time.Time) time.Time {
	last, _ := p.last.Load().(time.Time)
	if last.IsZero() {
		last = t
	}
	next := last.Add(p.interval)
	for steps := 0; !next.After(t); steps++ {
		if steps > maxIntervalJumps {
			log.Warnf("[work] periodic task fell %d intervals behind", steps)
			next = t.Add(p.interval)
			break
		}
		next = next.Add(p.interval)
	}
	p.last.Store(next)
	return next
}

type WheelOption func(*wheelScheduler)

func WithTick(d time.Duration) WheelOption {
	return func(s *wheelScheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithContext(ctx context.Context) WheelOption {
	return func(s *wheelScheduler) { s.ctx = ctx }
}

func WithExecutor(exec IExecutor) WheelOption {
	return func(s *wheelScheduler) { s.executor = exec }
}

type wheelScheduler struct {
	executor IExecutor
	tick     time.Duration
	tw       *timingwheel.TimingWheel
	mu       sync.Mutex
	tasks    map[int64]*timingwheel.Timer
	nextID   int64
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWheelScheduler 时间轮调度器, ctx 取消后自动停止
func NewWheelScheduler(opts ...WheelOption) Scheduler {
	s := &wheelScheduler{
		tick:  defaultWheelTick,
		ctx:   context.Background(),
		tasks: make(map[int64]*timingwheel.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	s.tw = timingwheel.NewTimingWheel(s.tick, defaultWheelSize)
	s.tw.Start()
	go func() {
		<-s.ctx.Done()
		s.Stop()
	}()
	return s
}

// Every 返回任务 id, 调度器已停止时返回 -1
func (s *wheelScheduler) Every(interval time.Duration, f func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || interval <= 0 {
		return -1
	}
	s.nextID++
	id := s.nextID
	s.tasks[id] = s.tw.ScheduleFunc(&every{interval: interval}, func() {
		if s.ctx.Err() == nil {
			ExecuteAsync(s.executor, f)
		}
	})
	return id
}

func (s *wheelScheduler) Cancel(taskID int64) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	delete(s.tasks, taskID)
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
}

func (s *wheelScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	s.cancel()
	for _, t := range tasks {
		t.Stop()
	}
	s.tw.Stop()
}
