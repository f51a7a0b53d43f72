package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"CRITICAL": slog.LevelError,
		"":         slog.LevelInfo,
		"bogus":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesFileAndStderr(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "watchdog.log")

	l := New(Options{Level: "info", Format: FormatJSON, FilePath: path, Stderr: &stderr})
	l.Info("child started", "pid", 42)
	l.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &entry); err != nil {
		t.Fatalf("stderr is not a single JSON line: %v (%q)", err, stderr.String())
	}
	if entry["msg"] != "child started" {
		t.Errorf("msg = %v", entry["msg"])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "child started") {
		t.Errorf("log file missing entry: %q", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug line written at info level")
	}
}

func TestNewFallsBackWhenFileUnavailable(t *testing.T) {
	var stderr bytes.Buffer
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	// The parent "directory" is a regular file, so the log cannot be opened.
	l := New(Options{Format: FormatText, FilePath: filepath.Join(blocker, "watchdog.log"), Stderr: &stderr})
	l.Info("still logging")

	out := stderr.String()
	if !strings.Contains(out, "log file unavailable") {
		t.Errorf("expected fallback warning, got %q", out)
	}
	if !strings.Contains(out, "still logging") {
		t.Errorf("expected stderr output, got %q", out)
	}
}
