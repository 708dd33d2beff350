package xgo

import (
	"runtime/debug"

	"github.com/yola1107/puppeteer/log"
)

// RecoverFromError must be deferred directly. It logs the panic with its stack
// and hands the recovered value to cb.
func RecoverFromError(cb func(e any)) {
	if e := recover(); e != nil {
		log.Errorf("Recover => %v\n%s\n", e, debug.Stack())
		if cb != nil {
			cb(e)
		}
	}
}

// SafeCall runs fn and swallows any panic it raises. It reports whether fn
// returned normally.
func SafeCall(fn func()) (ok bool) {
	defer RecoverFromError(func(any) { ok = false })
	if fn != nil {
		fn()
	}
	return true
}
