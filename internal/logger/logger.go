// Package logger wraps zap with a process-wide base logger and named
// children so every package logs under its own name.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.Logger
)

// Init builds the base logger writing to stdout. level is one of debug, info,
// warn, error (default info). format "json" selects the JSON encoder; anything
// else uses the console encoder. Calling Init again replaces the base logger.
func Init(level, format string) error {
	return InitTo(os.Stdout, level, format)
}

// InitTo is Init with an explicit destination. Commands that print results
// on stdout log to stderr.
func InitTo(w io.Writer, level, format string) error {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), parseLevel(level))
	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	base = l
	mu.Unlock()
	return nil
}

// GetLogger returns a named sugared logger. If Init has not been called the
// logger is initialized at info level.
func GetLogger(name string) *zap.SugaredLogger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		_ = Init("info", "console")
		mu.RLock()
		l = base
		mu.RUnlock()
	}
	return l.Named(name).Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
