// Package logger provides the structured logging sink handed to the engine
// and server as their opaque logging collaborator; it's the concrete sink
// cmd/ binaries wire in.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger so call sites use plain key/value pairs
// (the same shape the engine.Logger and kvserver logging interfaces expect)
// rather than constructing zap.Field values directly.
type Logger struct {
	*zap.SugaredLogger
}

// Config selects the logger's verbosity and encoding.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New builds a Logger per cfg. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zap.Config
	if cfg.Format == "console" {
		encoderCfg = zap.NewDevelopmentConfig()
	} else {
		encoderCfg = zap.NewProductionConfig()
	}
	encoderCfg.Level = zap.NewAtomicLevelAt(level)
	encoderCfg.OutputPaths = []string{"stdout"}

	zl, err := encoderCfg.Build()
	if err != nil {
		// Fall back to a no-frills logger rather than fail startup over a
		// logging misconfiguration.
		zl = zap.NewNop()
	}
	return &Logger{SugaredLogger: zl.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithComponent tags every subsequent log line with component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With("component", name)}
}

// WithFields tags every subsequent log line with the given key/value pairs.
func (l *Logger) WithFields(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

// Fatalw logs at error level and exits the process. zap's own Fatal calls
// os.Exit internally too, but this explicit wrapper gives callers one
// consistent entry point regardless of logger backend.
func (l *Logger) Fatalw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	os.Exit(1)
}

var defaultLogger = New(Config{Level: "info", Format: "json"})

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) { defaultLogger = l }

// Default returns the package-level default logger.
func Default() *Logger { return defaultLogger }
