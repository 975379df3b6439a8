package util

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging for the substrate. Two constraints shape this file: the feed loop
// counts-and-continues on per-update errors, so a broken feed can emit
// thousands of identical log lines per second — the console core is sampled
// to survive that; and the file core is the operator's audit trail, so it is
// never sampled and never dropped.

// logLevel resolves LOG_LEVEL ("debug", "info", "warn", "error"); anything
// unset or unparsable means info.
func logLevel() zapcore.Level {
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if lvl, err := zapcore.ParseLevel(s); err == nil {
			return lvl
		}
	}
	return zapcore.InfoLevel
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	// Durations in fields render as nanoseconds, matching the fixed-point
	// timestamps everywhere else in the system.
	cfg.EncodeDuration = zapcore.NanosDurationEncoder
	return cfg
}

// consoleCore writes JSON to stdout, sampled: the first 100 of any repeated
// message per second pass, then 1 in 100. Keeps a feed-error storm from
// drowning the terminal without losing the signal that it is happening.
func consoleCore(lvl zapcore.Level) zapcore.Core {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(os.Stdout),
		lvl,
	)
	return zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
}

// NewLogger builds a console-only logger (the sampled stdout core).
func NewLogger() (*zap.Logger, error) {
	return zap.New(consoleCore(logLevel())), nil
}

// NewLoggerWithFile tees the sampled console core with an unsampled
// append-only file core. The engine daemon logs through this; the file is
// the record consulted after an incident, so it gets every event down to
// the configured level.
func NewLoggerWithFile(logPath string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	lvl := logLevel()
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(file),
		lvl,
	)
	return zap.New(zapcore.NewTee(consoleCore(lvl), fileCore)), nil
}

// Component returns a child logger tagged for one subsystem (feed, wal,
// exec, ...), so grepping the audit file by component is trivial.
func Component(log *zap.Logger, name string) *zap.Logger {
	return log.Named(name).With(zap.String("component", name))
}
