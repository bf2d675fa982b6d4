// pkg/logger/logger.go

// Package logger bootstraps the process-wide zap logger with a console
// fallback when no log file path is writable.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// L returns the global logger, initializing a fallback if needed.
func L() *zap.Logger {
	if log == nil {
		InitializeWithFallback()
	}
	return log
}

// ParseLogLevel converts a LOG_LEVEL string to a zap level, defaulting to info.
func ParseLogLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// DefaultConsoleEncoderConfig matches the compact console format used across
// the CLI.
func DefaultConsoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "T"
	cfg.LevelKey = "L"
	cfg.NameKey = "N"
	cfg.CallerKey = "C"
	cfg.MessageKey = "M"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

// NewFallbackLogger builds a console-only logger for environments where no
// file path is writable.
func NewFallbackLogger() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		ParseLogLevel(os.Getenv("LOG_LEVEL")),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// InitializeWithFallback sets up console + JSON file logging, degrading to
// console only when the file path cannot be opened.
func InitializeWithFallback() {
	path, err := FindWritableLogPath()
	if err != nil {
		log = NewFallbackLogger()
		zap.ReplaceGlobals(log)
		return
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	writer, err := GetLogFileWriter(path)
	if err != nil {
		writer = zapcore.AddSync(os.Stdout)
	}

	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig()), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), writer, level),
	)

	log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	zap.ReplaceGlobals(log)
	log.Info("Logger initialized",
		zap.String("log_level", level.String()),
		zap.String("log_path", path),
	)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
