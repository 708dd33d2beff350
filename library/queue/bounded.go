package queue

import "sync/atomic"

// Bounded wraps Queue with a hard capacity. TryPush on a full queue is a no-op.
type Bounded[T any] struct {
	q        *Queue[T]
	capacity int64
	size     atomic.Int64
}

func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bounded[T]{q: New[T](), capacity: int64(capacity)}
}

// TryPush reserves a slot before linking the value, so concurrent producers
// can never push the length past capacity.
func (b *Bounded[T]) TryPush(v T) bool {
	if b.size.Add(1) > b.capacity {
		b.size.Add(-1)
		return false
	}
	b.q.Push(v)
	return true
}

func (b *Bounded[T]) Pop() (T, bool) {
	v, ok := b.q.Pop()
	if ok {
		b.size.Add(-1)
	}
	return v, ok
}

func (b *Bounded[T]) Peek() (T, bool) {
	return b.q.Peek()
}

func (b *Bounded[T]) Len() int {
	return int(b.size.Load())
}

func (b *Bounded[T]) Cap() int {
	return int(b.capacity)
}

func (b *Bounded[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := b.Pop()
		if !ok {
			return n
		}
		n++
		if fn != nil {
			fn(v)
		}
	}
}
