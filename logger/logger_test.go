package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{" warn ", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
	}

	for _, tt := range tests {
		lv, err := ParseLevel(tt.input)
		require.NoError(t, err, tt.input)
		require.Equal(t, tt.expected, lv, tt.input)
		require.NotContains(t, lv.String(), "Level(")
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestSlogLogger_JSON(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	l := NewSlog(InfoLevel, Options{Output: &buf})

	l.Debug("hidden")
	l.With("axis", "X").Warn("limit reached", "status", "LimitReached")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(lines, 1)

	var rec map[string]any
	require.NoError(json.Unmarshal([]byte(lines[0]), &rec))
	require.Contains(rec, "ts")
	require.Equal("WARN", rec["level"])
	require.Equal("limit reached", rec["msg"])
	require.Equal("X", rec["axis"])
	require.Equal("LimitReached", rec["status"])
}

func TestSlogLogger_SetLevelSharedWithChildren(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	l := NewSlog(ErrorLevel, Options{Output: &buf})
	child := l.With("component", "bus")

	child.Info("dropped")
	require.Zero(buf.Len())

	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, child.Level())

	child.Debug("frame", "id", 1)
	require.Contains(buf.String(), `"component":"bus"`)
}

func TestSlogLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(InfoLevel, Options{Output: &buf, Console: true})

	l.Info("axes initialised", "count", 6)
	require.Contains(t, buf.String(), "axes initialised")
	require.Contains(t, buf.String(), "count")
}

func TestDefaultLogger(t *testing.T) {
	require := require.New(t)

	orig := GetLogger()
	defer SetDefault(orig)

	m := &MockLogger{}
	m.On("Info", "hello", []any{"k", "v"}).Once()
	SetDefault(m)

	Info("hello", "k", "v")
	m.AssertExpectations(t)
	require.Same(m, GetLogger())
}
