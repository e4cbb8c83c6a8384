package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

// Init installs the process logger. env "dev" logs coloured console lines,
// anything else logs JSON. Every entry carries the service and env fields.
func Init(service, env, level string) {
	l, err := New(service, env, level)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	base.Store(l)
	l.Info("logger initialized", zap.String("level", level))
}

// New builds a logger without installing it.
func New(service, env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", service), zap.String("env", env)), nil
}

// L returns the process logger, initialising a dev logger on first use.
func L() *zap.Logger {
	if l := base.Load(); l != nil {
		return l
	}
	Init("unknown", "dev", "info")
	return base.Load()
}

func S() *zap.SugaredLogger { return L().Sugar() }

// Named returns a child logger tagged with a component name, e.g. "api".
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes buffered entries. Defer it in main.
func Sync() {
	if l := base.Load(); l != nil {
		_ = l.Sync()
	}
}

// Replace installs l and returns a func restoring the previous logger.
func Replace(l *zap.Logger) (restore func()) {
	prev := base.Swap(l)
	return func() { base.Store(prev) }
}
