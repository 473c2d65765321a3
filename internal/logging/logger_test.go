package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("stage started", zap.Int("stage", 2))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "stage started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 2, entry["stage"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleNoColor(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "console", NoColor: true, Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("metric has no samples")
	_ = logger.Sync()

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "metric has no samples")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\x1b[")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := New(Config{Level: "debug", Output: OutputFile, FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Debug("to file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Output: "syslog"})
	assert.Error(t, err)

	_, err = New(Config{Output: OutputFile})
	assert.Error(t, err)
}

func TestNew_None(t *testing.T) {
	logger, err := New(Config{Output: OutputNone})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
