package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap logger to Logger. Calls with a format verb are
// formatted, everything else is treated as a message plus key/value pairs.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger wraps l, a nil logger discards output
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Named("auth").Sugar()}
}

// NewProductionZapLogger builds a JSON zap logger at the given level
func NewProductionZapLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func (z *ZapLogger) Debug(format string, args ...any) {
	if isPrintf(format, args) {
		z.sugar.Debugf(format, args...)
		return
	}
	z.sugar.Debugw(format, args...)
}

func (z *ZapLogger) Info(format string, args ...any) {
	if isPrintf(format, args) {
		z.sugar.Infof(format, args...)
		return
	}
	z.sugar.Infow(format, args...)
}

func (z *ZapLogger) Warn(format string, args ...any) {
	if isPrintf(format, args) {
		z.sugar.Warnf(format, args...)
		return
	}
	z.sugar.Warnw(format, args...)
}

func (z *ZapLogger) Error(format string, args ...any) {
	if isPrintf(format, args) {
		z.sugar.Errorf(format, args...)
		return
	}
	z.sugar.Errorw(format, args...)
}

// Sync flushes buffered entries
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

// NewZapActivitySink writes every activity event as an info entry on the
// "activity" logger
func NewZapActivitySink(l *zap.Logger) ActivitySink {
	if l == nil {
		l = zap.NewNop()
	}
	sugar := l.Named("activity").Sugar()
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		sugar.Infow(string(event.Type), event.Fields()...)
		return nil
	})
}

func isPrintf(format string, args []any) bool {
	return len(args) > 0 && strings.Contains(format, "%")
}
