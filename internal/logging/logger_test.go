package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readLogLines parses each JSON line from the run directory's debug.log.
func readLogLines(t *testing.T, runDir string) []map[string]any {
	t.Helper()

	f, err := os.Open(filepath.Join(runDir, LogFileName))
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestNewLoggerWritesJSON(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	logger.Info("task admitted", "session_key", "s1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	lines := readLogLines(t, dir)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	if lines[0]["msg"] != "task admitted" {
		t.Errorf("msg = %v, want %q", lines[0]["msg"], "task admitted")
	}
	if lines[0]["session_key"] != "s1" {
		t.Errorf("session_key = %v, want %q", lines[0]["session_key"], "s1")
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")
	logger.Error("also visible")
	logger.Close()

	lines := readLogLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
}

func TestChildLoggerAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	child := logger.WithSession("s1").WithTask("t1").WithPhase("submit")
	child.Info("attempt failed", "attempt", 3)
	logger.Close()

	lines := readLogLines(t, dir)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	entry := lines[0]
	for k, want := range map[string]string{
		"session_key": "s1",
		"task_id":     "t1",
		"phase":       "submit",
	} {
		if entry[k] != want {
			t.Errorf("%s = %v, want %q", k, entry[k], want)
		}
	}
	if entry["attempt"] != float64(3) {
		t.Errorf("attempt = %v, want 3", entry["attempt"])
	}
}

func TestChildLoggerDoesNotMutateParent(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	_ = logger.WithTask("t1")
	logger.Info("parent entry")
	logger.Close()

	lines := readLogLines(t, dir)
	if _, ok := lines[0]["task_id"]; ok {
		t.Error("parent logger should not carry child attributes")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	// Must not panic and must tolerate Close.
	logger.Info("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "debug.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error: %v", err)
	}
	// Force a tiny limit by writing through the internal field directly.
	rw.maxSizeB = 64

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 4; i++ {
		if _, err := rw.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("current log file missing: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated backup missing: %v", err)
	}
}

func TestRotatingWriterClosedWrite(t *testing.T) {
	dir := t.TempDir()
	rw, err := NewRotatingWriter(filepath.Join(dir, "debug.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error: %v", err)
	}
	rw.Close()

	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write() after Close() should fail")
	}
}
