package queue

import "sync/atomic"

/*
	无锁队列 (Michael-Scott)
	多生产者安全, 消费者通常只有一个
*/

type node[T any] struct {
	next atomic.Pointer[node[T]]
	val  T
}

// Queue is an unbounded lock-free FIFO. Push and Pop never block.
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	size atomic.Int64
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	dummy := &node[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

func (q *Queue[T]) Push(v T) {
	n := &node[T]{val: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.size.Add(1)
			return
		}
	}
}

func (q *Queue[T]) Pop() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			var zero T
			return zero, false
		}
		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		v := next.val
		if q.head.CompareAndSwap(head, next) {
			q.size.Add(-1)
			return v, true
		}
	}
}

// Peek returns the head without removing it. Only the single consumer may
// rely on a following Pop returning the same value.
func (q *Queue[T]) Peek() (T, bool) {
	for {
		head := q.head.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			var zero T
			return zero, false
		}
		return next.val, true
	}
}

// Len is approximate while producers are active.
func (q *Queue[T]) Len() int {
	if n := q.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Drain pops everything currently queued and hands it to fn in order.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := q.Pop()
		if !ok {
			return n
		}
		n++
		if fn != nil {
			fn(v)
		}
	}
}
