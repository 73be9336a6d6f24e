// Package logger provides a thin structured logging wrapper around zap.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with a small keyvalue-style API.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger. Mode "production" uses JSON output at info level;
// anything else uses the console development encoder at debug level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	if mode == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

// NewNop returns a Logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// With returns a child logger with the given key-value pairs attached.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.sugar.Fatalw(msg, args...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }
