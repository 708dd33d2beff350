package log

import (
	"fmt"
	"os"
	"sync"
)

// globalLogger is designed as a global logger in current process.
var global = &loggerAppliance{}

type loggerAppliance struct {
	lock sync.RWMutex
	Logger
}

func init() {
	global.SetLogger(NewStdLogger(os.Stderr))
}

func (a *loggerAppliance) SetLogger(in Logger) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.Logger = in
}

func (a *loggerAppliance) get() Logger {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.Logger
}

// SetLogger should be called before any other log call.
// And it is NOT THREAD SAFE.
func SetLogger(logger Logger) {
	global.SetLogger(logger)
}

// GetLogger returns global logger appliance as logger in current process.
func GetLogger() Logger {
	return global.get()
}

// Log Print log by level and keyvals.
func Log(level Level, keyvals ...any) {
	_ = global.get().Log(level, keyvals...)
}

// Debug logs a message at debug level.
func Debug(a ...any) {
	_ = global.get().Log(LevelDebug, DefaultMessageKey, fmt.Sprint(a...))
}

// Debugf logs a message at debug level.
func Debugf(format string, a ...any) {
	_ = global.get().Log(LevelDebug, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Debugw logs a message at debug level.
func Debugw(keyvals ...any) {
	_ = global.get().Log(LevelDebug, keyvals...)
}

// Info logs a message at info level.
func Info(a ...any) {
	_ = global.get().Log(LevelInfo, DefaultMessageKey, fmt.Sprint(a...))
}

// Infof logs a message at info level.
func Infof(format string, a ...any) {
	_ = global.get().Log(LevelInfo, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Infow logs a message at info level.
func Infow(keyvals ...any) {
	_ = global.get().Log(LevelInfo, keyvals...)
}

// Warn logs a message at warn level.
func Warn(a ...any) {
	_ = global.get().Log(LevelWarn, DefaultMessageKey, fmt.Sprint(a...))
}

// Warnf logs a message at warnf level.
func Warnf(format string, a ...any) {
	_ = global.get().Log(LevelWarn, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Warnw logs a message at warnf level.
func Warnw(keyvals ...any) {
	_ = global.get().Log(LevelWarn, keyvals...)
}

// Error logs a message at error level.
func Error(a ...any) {
	_ = global.get().Log(LevelError, DefaultMessageKey, fmt.Sprint(a...))
}

// Errorf logs a message at error level.
func Errorf(format string, a ...any) {
	_ = global.get().Log(LevelError, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Errorw logs a message at error level.
func Errorw(keyvals ...any) {
	_ = global.get().Log(LevelError, keyvals...)
}

// Fatal logs a message at fatal level.
func Fatal(a ...any) {
	_ = global.get().Log(LevelFatal, DefaultMessageKey, fmt.Sprint(a...))
	os.Exit(1)
}

// Fatalf logs a message at fatal level.
func Fatalf(format string, a ...any) {
	_ = global.get().Log(LevelFatal, DefaultMessageKey, fmt.Sprintf(format, a...))
	os.Exit(1)
}
