// Package log provides the shared structured logging facade for prsync.
// It wraps a zap SugaredLogger so call sites can log with alternating
// key/value pairs without importing zap directly.
package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.SugaredLogger
)

// Init configures the global logger with the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
// Safe to call more than once; the last call wins.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		parseLevel(level),
	)

	logger = zap.New(core).Sugar()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func get() *zap.SugaredLogger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// Debug logs a debug message with alternating key/value pairs.
func Debug(msg string, keysAndValues ...interface{}) {
	get().Debugw(msg, keysAndValues...)
}

// Info logs an informational message with alternating key/value pairs.
func Info(msg string, keysAndValues ...interface{}) {
	get().Infow(msg, keysAndValues...)
}

// Warn logs a warning with alternating key/value pairs.
func Warn(msg string, keysAndValues ...interface{}) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs an error with alternating key/value pairs.
func Error(msg string, keysAndValues ...interface{}) {
	get().Errorw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Best effort.
func Sync() {
	if l := get(); l != nil {
		_ = l.Sync()
	}
}
