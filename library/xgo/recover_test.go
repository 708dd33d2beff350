package xgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeCall(t *testing.T) {
	assert.True(t, SafeCall(func() {}))
	assert.True(t, SafeCall(nil))
	assert.False(t, SafeCall(func() { panic("boom") }))
}

func TestRecoverFromErrorCallback(t *testing.T) {
	var got any
	func() {
		defer RecoverFromError(func(e any) { got = e })
		panic("oops")
	}()
	assert.Equal(t, "oops", got)
}
