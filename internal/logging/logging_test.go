package logging

import (
	"bytes"
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
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", zap.String("task_id", "t-1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "t-1")
}

func TestNew_FileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "team_activity.log")
	logger, closeFn, err := New(Options{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Debug("task transition", zap.String("status", "done"))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "{"))
	assert.Contains(t, line, `"status":"done"`)
}

func TestNew_NoSinksIsNop(t *testing.T) {
	logger, closeFn, err := New(Options{})
	require.NoError(t, err)
	assert.NoError(t, closeFn())
	logger.Info("discarded")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
