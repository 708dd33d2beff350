package ext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRandBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		n := RandInt(5, 10)
		require.GreaterOrEqual(t, n, 5)
		require.Less(t, n, 10)

		f := RandFloat(0.9, 1.1)
		require.GreaterOrEqual(t, f, 0.9)
		require.Less(t, f, 1.1)
	}
	require.Equal(t, 3, RandInt(3, 3))
}

func TestJitter(t *testing.T) {
	base := 5 * time.Second
	for i := 0; i < 1000; i++ {
		d := Jitter(base, 0.2)
		require.GreaterOrEqual(t, d, 4*time.Second)
		require.Less(t, d, 6*time.Second)
	}
	require.Equal(t, base, Jitter(base, 0))
}
