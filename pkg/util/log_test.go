package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, zapcore.DebugLevel, logLevel())

	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, zapcore.WarnLevel, logLevel())

	t.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, zapcore.InfoLevel, logLevel())

	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, zapcore.InfoLevel, logLevel())
}

func TestNewLoggerWithFileWritesAudit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")

	log, err := NewLoggerWithFile(path)
	require.NoError(t, err)

	log.Info("engine_started")
	_ = log.Sync() // stdout sync may EINVAL, the file core has already written

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engine_started")
}

func TestComponentTagsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	log, err := NewLoggerWithFile(path)
	require.NoError(t, err)

	Component(log, "feed").Warn("disconnected")
	_ = log.Sync() // stdout sync may EINVAL, the file core has already written

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"feed"`)
	assert.Contains(t, string(data), "disconnected")
}
