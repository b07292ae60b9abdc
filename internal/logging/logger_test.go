package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLogLines(t *testing.T, workDir string) []map[string]any {
	t.Helper()

	f, err := os.Open(filepath.Join(workDir, "debug.log"))
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not valid JSON: %v", err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggerWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("stream created", "stream_id", "001-demo")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, dir)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if lines[0]["msg"] != "stream created" {
		t.Errorf("unexpected msg: %v", lines[0]["msg"])
	}
	if lines[0]["stream_id"] != "001-demo" {
		t.Errorf("unexpected stream_id: %v", lines[0]["stream_id"])
	}
}

func TestChildLoggersInheritAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	child := logger.WithStream("001-demo").WithThread("01.01.01").WithPhase("execution")
	child.Debug("session started")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, dir)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	entry := lines[0]
	for key, want := range map[string]string{
		"stream_id": "001-demo",
		"thread_id": "01.01.01",
		"phase":     "execution",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("also kept")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	logger.WithStream("s").Error("also discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on NopLogger: %v", err)
	}
}
