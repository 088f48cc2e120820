package logger

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Options 日志初始化参数
type Options struct {
	Level       string
	Development bool
	SentryDSN   string
	Environment string
}

// Init 初始化全局 logger；SentryDSN 非空时 error 级别日志同步上报 sentry。
func Init(opts Options) error {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level

	var zopts []zap.Option
	if opts.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN, Environment: opts.Environment}); err != nil {
			return err
		}
		zopts = append(zopts, zap.Hooks(sentryHook))
	}

	l, err := cfg.Build(zopts...)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

func sentryHook(e zapcore.Entry) error {
	if e.Level < zapcore.ErrorLevel {
		return nil
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("logger", e.LoggerName)
		scope.SetExtra("caller", e.Caller.TrimmedPath())
		sentry.CaptureMessage(e.Message)
	})
	return nil
}

// Set replaces the global logger. Tests use it with zaptest/observer loggers.
func Set(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Named returns a child of the global logger.
func Named(name string) *zap.Logger { return L().Named(name) }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Sync flushes buffered entries and pending sentry events.
func Sync() {
	_ = L().Sync()
	sentry.Flush(2 * time.Second)
}
