package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "parser.log")

	for i := 0; i < 2; i++ {
		l, err := New(Config{Level: "info", Format: "text", File: path})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		l.Info("run finished", "run", i)
		if err := l.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	for _, line := range lines {
		if !strings.Contains(line, "time=") || !strings.Contains(line, "level=INFO") {
			t.Errorf("line missing timestamp or level: %q", line)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: "warn"})

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Format: "json"})

	l.WithComponent("fetcher").Info("hello")

	if !strings.Contains(buf.String(), `"component":"fetcher"`) {
		t.Errorf("component attribute missing: %q", buf.String())
	}
}
