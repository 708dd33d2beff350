package work

import (
	"context"
	"time"
)

const defaultPoolSize = 16

// Store 回调池+周期任务, 周期任务也在池中执行. ctx 取消后周期任务停止
type Store struct {
	*Pool
	timer Scheduler
}

func NewStore(ctx context.Context, size int) *Store {
	if size <= 0 {
		size = defaultPoolSize
	}
	p := NewPool(size)
	return &Store{
		Pool:  p,
		timer: NewWheelScheduler(WithContext(ctx), WithExecutor(p)),
	}
}

func (s *Store) Every(interval time.Duration, f func()) int64 {
	return s.timer.Every(interval, f)
}

func (s *Store) Stop() {
	s.timer.Stop()
	s.Pool.Stop()
}
