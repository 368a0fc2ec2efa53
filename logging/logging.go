// Package logging provides the structured logger used by the engine's
// callers (CLI front-ends, benchmarking harnesses) to record diagnostic
// detail that never reaches the operator UI: construction errors, per-frame
// NotFound reasons, and the engine state-machine transitions.
//
// The engine package itself never imports logging; it is purely a
// caller-side concern, but every caller-facing command in this module wires
// through it the same way, so it lives centrally here.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// FileConfig controls log rotation when logs are written to disk in
// addition to stderr.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// InitProduction configures the global logger for JSON output suitable for
// unattended runs on press-floor hardware. If file is non-nil, logs are
// additionally rotated to disk via lumberjack.
func InitProduction(file *FileConfig) error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file == nil {
		l, err := cfg.Build()
		if err != nil {
			return err
		}
		setLogger(l)
		return nil
	}

	encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    orDefault(file.MaxSizeMB, 50),
		MaxBackups: orDefault(file.MaxBackups, 5),
		MaxAge:     orDefault(file.MaxAgeDays, 30),
		Compress:   file.Compress,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), cfg.Level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(cfg.EncoderConfig), zapcore.Lock(zapcore.AddSync(os.Stderr)), cfg.Level),
	)
	l := zap.New(core, zap.AddCaller())
	setLogger(l)
	return nil
}

// InitDevelopment configures the global logger for a human-readable console
// during local debugging and benchmarking.
func InitDevelopment() error {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

func setLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// L returns the current global logger, falling back to zap's no-op logger
// if Init* has not yet been called.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S returns the current global sugared logger.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes any buffered log entries. Callers should defer it from main.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
