package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level LogLevel) (*SolaceLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = &buf
	cfg.AddSource = false
	return NewLogger(cfg), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestSolaceLogger_KeyValueArgs(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.Info("score persisted", "score_id", "sc1", "total", 12)

	entry := lastEntry(t, buf)
	assert.Equal(t, "score persisted", entry["msg"])
	assert.Equal(t, "sc1", entry["score_id"])
	assert.Equal(t, float64(12), entry["total"])
}

func TestSolaceLogger_LevelGating(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Equal(t, "shown", lastEntry(t, buf)["msg"])
}

func TestSolaceLogger_WithComponent(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)
	scoped := logger.WithComponent("orchestrator")

	scoped.Info("handling message")
	assert.Equal(t, "orchestrator", lastEntry(t, buf)["component"])

	// The parent is untouched.
	logger.Info("plain")
	_, ok := lastEntry(t, buf)["component"]
	assert.False(t, ok)
}

func TestSolaceLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Format = "text"
	cfg.Output = &buf
	cfg.AddSource = false
	logger := NewLogger(cfg)

	logger.Error("store down", "error", "dial refused")
	assert.Contains(t, buf.String(), "store down")
	assert.Contains(t, buf.String(), "dial refused")
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Info("adapted", "key", "value")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "adapted", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}
