package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	dir := t.TempDir()
	logger, err := New(Config{Level: "debug", Dir: dir, Filename: "server.log"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "info", Dir: dir, Filename: "server.log"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("session %s started", "abc-123")
	logger.InfoTag("ARBITER", "state %s -> %s", "idle", "listening")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "session abc-123 started") {
		t.Errorf("log file missing formatted message: %s", content)
	}
	if !strings.Contains(content, "[ARBITER] state idle -> listening") {
		t.Errorf("log file missing tagged message: %s", content)
	}
}

func TestFormatLog(t *testing.T) {
	tests := []struct {
		tag      string
		message  string
		expected string
	}{
		{"PHI", "span blocked", "[PHI] span blocked"},
		{"", "no tag", "no tag"},
		{"MODE", "[MODE] already tagged", "[MODE] already tagged"},
	}
	for _, tt := range tests {
		if got := FormatLog(tt.tag, tt.message); got != tt.expected {
			t.Errorf("FormatLog(%q, %q) = %q, expected %q", tt.tag, tt.message, got, tt.expected)
		}
	}
}

func TestLoggerDebugSuppressedAtInfoLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "info", Dir: dir, Filename: "server.log"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden detail")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "hidden detail") {
		t.Errorf("debug entry should be suppressed at info level")
	}
}
