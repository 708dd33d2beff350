package work

import (
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/yola1107/puppeteer/library/xgo"
	"github.com/yola1107/puppeteer/log"
)

// PoolStatus 回调池快照
type PoolStatus struct {
	Capacity int
	Running  int
	Free     int
}

// Pool 运行完成回调的 ants 协程池. 未启动或已关闭时, 任务退化为单独的 goroutine
type Pool struct {
	mu   sync.RWMutex
	pool *ants.Pool
	size int
}

func NewPool(size int) *Pool {
	return &Pool{size: max(size, 1)}
}

func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		return nil
	}
	// 空闲 worker 1 分钟后回收
	pool, err := ants.NewPool(p.size, ants.WithExpiryDuration(time.Minute))
	if err != nil {
		return fmt.Errorf("callback pool: %w", err)
	}
	p.pool = pool
	log.Debugf("[work] callback pool started size=%d", p.size)
	return nil
}

func (p *Pool) Stop() {
	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()
	if pool != nil {
		pool.Release()
	}
}

func (p *Pool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil {
		return PoolStatus{}
	}
	c, r := p.pool.Cap(), p.pool.Running()
	return PoolStatus{Capacity: c, Running: r, Free: max(c-r, 0)}
}

func (p *Pool) Post(job func()) {
	run := func() {
		defer xgo.RecoverFromError(nil)
		job()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil || p.pool.IsClosed() {
		go run()
		return
	}
	if err := p.pool.Submit(run); err != nil {
		log.Warnf("[work] submit: %v, running detached", err)
		go run()
	}
}
