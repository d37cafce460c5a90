package logging

import (
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap logger to the Logger interface.
// Fatalf logs at error level with fatal=true; it never calls zap's Fatal, which exits.
type ZapLogger struct {
	sugar        *zap.SugaredLogger
	fatalHandler atomic.Pointer[FatalHandler]
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewJSONLogger builds a zap logger emitting one JSON object per line to w.
func NewJSONLogger(w io.Writer, level Level) *ZapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapLevel(level))
	return NewZapLogger(zap.New(core))
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetFatalHandler sets the handler called when Fatalf is invoked.
func (l *ZapLogger) SetFatalHandler(h FatalHandler) {
	l.fatalHandler.Store(&h)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// Errorf implements Logger.
func (l *ZapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Warnf implements Logger.
func (l *ZapLogger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }

// Infof implements Logger.
func (l *ZapLogger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }

// Debugf implements Logger.
func (l *ZapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

// Fatalf implements Logger.
func (l *ZapLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.sugar.Errorw(msg, "fatal", true)
	if h := l.fatalHandler.Load(); h != nil {
		(*h)(msg)
	}
}
