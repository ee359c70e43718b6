package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWithOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, level := NewWithOutput(false, zapcore.AddSync(&buf), false)

	logger.Debug("hidden")
	logger.Info("place batch complete", zap.Int("succeeded", 7))
	_ = logger.Sync()

	if level.Level() != zapcore.InfoLevel {
		t.Fatalf("level = %v, want info", level.Level())
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "place batch complete" || entry["succeeded"] != float64(7) {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewWithOutputVerboseConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, level := NewWithOutput(true, zapcore.AddSync(&buf), true)

	logger.Debug("cache lookup", zap.String("query", "Nara Park deer, Nara, Japan"))
	_ = logger.Sync()

	if level.Level() != zapcore.DebugLevel {
		t.Fatalf("level = %v, want debug", level.Level())
	}
	out := buf.String()
	if !strings.Contains(out, "cache lookup") || strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}
