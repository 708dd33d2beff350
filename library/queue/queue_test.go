package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	_, ok := q.Pop()
	require.False(t, ok)

	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	require.Equal(t, 10, q.Len())

	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, q.Len())
}

func TestQueuePeek(t *testing.T) {
	q := NewBounded[string](2)
	_, ok := q.Peek()
	require.False(t, ok)

	q.TryPush("a")
	q.TryPush("b")
	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, q.Len())

	v, _ = q.Pop()
	assert.Equal(t, "a", v)
	v, _ = q.Peek()
	assert.Equal(t, "b", v)
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 500
	q := New[[2]int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	// per-producer order must survive interleaving
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	n := q.Drain(func(v [2]int) {
		require.Greater(t, v[1], last[v[0]])
		last[v[0]] = v[1]
	})
	assert.Equal(t, producers*perProducer, n)
}

func TestBoundedDropOnFull(t *testing.T) {
	b := NewBounded[int](200)
	for i := 0; i < 200; i++ {
		require.True(t, b.TryPush(i))
	}
	require.False(t, b.TryPush(200))
	require.Equal(t, 200, b.Len())

	v, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, 0, v)
	require.True(t, b.TryPush(201))

	var got []int
	b.Drain(func(v int) { got = append(got, v) })
	require.Len(t, got, 200)
	require.Equal(t, 201, got[len(got)-1])
	require.Equal(t, 0, b.Len())
}

func TestBoundedConcurrentCapacity(t *testing.T) {
	b := NewBounded[int](50)
	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.TryPush(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
	assert.Equal(t, 50, b.Drain(nil))
}
