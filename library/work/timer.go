package work

import (
	"time"

	"github.com/yola1107/puppeteer/library/xgo"
)

// Scheduler 周期任务调度
type Scheduler interface {
	Every(interval time.Duration, f func()) int64
	Cancel(taskID int64)
	Stop()
}

// IExecutor 任务执行器, 如协程池
type IExecutor interface {
	Post(job func())
}

// ExecuteAsync 在 executor 上执行 f, executor 为空时另起 goroutine
func ExecuteAsync(executor IExecutor, f func()) {
	run := func() {
		defer xgo.RecoverFromError(nil)
		f()
	}
	if executor != nil {
		executor.Post(run)
	} else {
		go run()
	}
}
