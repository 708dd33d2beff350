package ext

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/exp/constraints"
)

var (
	mu    sync.Mutex
	srand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func RandFloat[T constraints.Float](min T, max T) T {
	if max <= min {
		return min
	}
	mu.Lock()
	f := srand.Float64()
	mu.Unlock()
	return T(f)*(max-min) + min
}

func RandInt[T constraints.Integer](min T, max T) T {
	if max <= min {
		return min
	}
	mu.Lock()
	n := srand.Int63n(int64(max - min))
	mu.Unlock()
	return T(n) + min
}

// Jitter returns d scaled by a random factor in [1-frac, 1+frac).
func Jitter(d time.Duration, frac float64) time.Duration {
	if d <= 0 || frac <= 0 {
		return d
	}
	return time.Duration(float64(d) * RandFloat(1-frac, 1+frac))
}
