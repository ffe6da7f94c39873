package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFunctions_NoNilPointers(t *testing.T) {
	logger = nil

	assert.NotPanics(t, func() {
		Debug("test debug", "key", "value")
		Info("test info", "key", "value")
		Warn("test warn", "key", "value")
		Error("test error", "key", "value")
		Debug("message only")
	})
}

func TestInitWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, log.WarnLevel)
	defer func() { logger = nil }()

	Info("hidden", "room", "abc")
	Warn("shown", "room", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "room=abc")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"WARN", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"nonsense", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestOpenSinkFallsBackToStderr(t *testing.T) {
	assert.Equal(t, os.Stderr, openSink("", 10))
	assert.Equal(t, os.Stderr, openSink(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), 10))
}

func TestOpenSinkRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daredrop.log")
	w := openSink(path, 0)

	_, err := w.Write([]byte("hello\n"))
	assert.NoError(t, err)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
