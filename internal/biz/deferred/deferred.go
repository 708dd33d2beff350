// Package deferred hands work from socket and worker goroutines to the
// simulation tick. Producers Add, the tick drains one action per key.
package deferred

import (
	"fmt"

	"github.com/yola1107/puppeteer/library/queue"
	"github.com/yola1107/puppeteer/library/xgo"
	"github.com/yola1107/puppeteer/log"
)

// Key is an operation category. Each key is an independent FIFO.
type Key int

const (
	KeyAssign   Key = iota // registry mutations
	KeyState               // state setters on actors
	KeyJob                 // job execution
	KeyPortrait            // portrait capture
	KeyLog                 // host notifications
	keyCount
)

func (k Key) String() string {
	switch k {
	case KeyAssign:
		return "assign"
	case KeyState:
		return "state"
	case KeyJob:
		return "job"
	case KeyPortrait:
		return "portrait"
	case KeyLog:
		return "log"
	default:
		return fmt.Sprintf("key(%d)", int(k))
	}
}

func (k Key) Valid() bool {
	return k >= 0 && k < keyCount
}

// Keys lists every category in processing order.
func Keys() []Key {
	keys := make([]Key, 0, keyCount)
	for k := Key(0); k < keyCount; k++ {
		keys = append(keys, k)
	}
	return keys
}

type Queue struct {
	queues [keyCount]*queue.Queue[func()]
}

func New() *Queue {
	q := &Queue{}
	for i := range q.queues {
		q.queues[i] = queue.New[func()]()
	}
	return q
}

// Add never blocks. Unknown keys and nil actions are ignored.
func (q *Queue) Add(key Key, action func()) bool {
	if !key.Valid() {
		log.Warnf("[deferred] add to unknown %v ignored", key)
		return false
	}
	if action == nil {
		return false
	}
	q.queues[key].Push(action)
	return true
}

// Process runs at most one action of key and reports whether one ran.
// A panicking action is logged and counts as run.
func (q *Queue) Process(key Key) bool {
	if !key.Valid() {
		log.Warnf("[deferred] process of unknown %v ignored", key)
		return false
	}
	action, ok := q.queues[key].Pop()
	if !ok {
		return false
	}
	if !xgo.SafeCall(action) {
		log.Errorf("[deferred] %v action panicked", key)
	}
	return true
}

// ProcessAll calls Process once per key and returns how many actions ran.
func (q *Queue) ProcessAll() int {
	n := 0
	for k := Key(0); k < keyCount; k++ {
		if q.Process(k) {
			n++
		}
	}
	return n
}

func (q *Queue) Len(key Key) int {
	if !key.Valid() {
		return 0
	}
	return q.queues[key].Len()
}

// Clear drops every pending action without running it.
func (q *Queue) Clear() int {
	n := 0
	for _, sub := range q.queues {
		n += sub.Drain(func(func()) {})
	}
	return n
}
