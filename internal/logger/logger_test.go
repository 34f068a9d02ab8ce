package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func withBuffer(t *testing.T, level zapcore.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Log
	Log = New(level, zapcore.AddSync(&buf))
	t.Cleanup(func() { Log = prev })
	return &buf
}

func TestPrintfShortcuts(t *testing.T) {
	buf := withBuffer(t, zapcore.DebugLevel)

	Debugf("dbg %d", 1)
	Infof("match %s", "a_b")
	Warnf("slow %s", "client")
	Errorf("failed: %v", "boom")

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "dbg 1")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "match a_b")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "failed: boom")
}

func TestLevelFiltering(t *testing.T) {
	buf := withBuffer(t, zapcore.InfoLevel)

	Debugf("hidden")
	Infof("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
