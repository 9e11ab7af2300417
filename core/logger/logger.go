// Package logger is a thin wrapper around zap, exposing a package-level
// sugared logger so call sites don't have to thread a logger instance around.
package logger

import (
	"log"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger.
type Logger struct {
	*zap.SugaredLogger
}

var (
	mu            sync.Mutex
	defaultLogger *Logger
)

func init() {
	defaultLogger = newLogger(zapcore.InfoLevel)
}

func newLogger(lvl zapcore.Level) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		log.Fatal(err)
	}
	return &Logger{zl.Sugar()}
}

// SetLevel replaces the default logger with one logging at the given level.
func SetLevel(lvl zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = newLogger(lvl)
}

// Default returns the package-level logger.
func Default() *Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// Sync flushes any buffered log entries.
func Sync() error {
	return Default().SugaredLogger.Sync()
}

func Debug(args ...interface{})                   { Default().Debug(args...) }
func Info(args ...interface{})                    { Default().Info(args...) }
func Warn(args ...interface{})                    { Default().Warn(args...) }
func Error(args ...interface{})                   { Default().Error(args...) }
func Debugf(format string, args ...interface{})   { Default().Debugf(format, args...) }
func Infof(format string, args ...interface{})    { Default().Infof(format, args...) }
func Warnf(format string, args ...interface{})    { Default().Warnf(format, args...) }
func Errorf(format string, args ...interface{})   { Default().Errorf(format, args...) }
func Debugw(msg string, keysAndValues ...interface{}) { Default().Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...interface{})  { Default().Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { Default().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { Default().Errorw(msg, keysAndValues...) }

// Fatal logs and exits. Used for invariant violations where continuing would
// corrupt subscriber or store state.
func Fatal(args ...interface{}) { Default().Fatal(args...) }

func Fatalf(format string, args ...interface{}) { Default().Fatalf(format, args...) }

func Fatalw(msg string, keysAndValues ...interface{}) { Default().Fatalw(msg, keysAndValues...) }
