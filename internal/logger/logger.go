// README: Global structured logger (zap) with package-level helpers.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string
	Development bool
}

var (
	global *zap.Logger
	once   sync.Once
	mu     sync.RWMutex
)

// New builds a zap logger for the given level ("debug", "info", "warn", "error").
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build(zap.AddCallerSkip(1))
}

// SetGlobalLogger replaces the process-wide logger. Call once at startup.
func SetGlobalLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// GetGlobalLogger returns the process-wide logger, creating a production
// logger on first use if none was set.
func GetGlobalLogger() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	once.Do(func() {
		def, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			def = zap.NewNop()
		}
		mu.Lock()
		if global == nil {
			global = def
		}
		mu.Unlock()
	})

	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Debug(msg string, fields ...Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	GetGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...Field) {
	GetGlobalLogger().Error(msg, fields...)
}

// Fatal logs and exits the process.
func Fatal(msg string, fields ...Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}

// Sync flushes buffered entries.
func Sync() error {
	return GetGlobalLogger().Sync()
}
