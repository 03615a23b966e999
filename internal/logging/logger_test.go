package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config uses defaults", config: nil},
		{name: "explicit debug config", config: &Config{Level: LevelDebug, Output: &bytes.Buffer{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}

	logger.Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Fatalf("expected warning message in output, got %q", buf.String())
	}
}

func TestLoggerWithFd(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	fdLogger := logger.WithFd(7)
	fdLogger.Info("flushed")

	output := buf.String()
	if !strings.Contains(output, "fd=7") {
		t.Errorf("expected fd=7 in output, got: %s", output)
	}
	if !strings.Contains(output, "flushed") {
		t.Errorf("expected message in output, got: %s", output)
	}
}

func TestLoggerPrintfVariants(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("n=%d", 3)
	logger.Errorf("boom: %s", "oops")

	output := buf.String()
	if !strings.Contains(output, "n=3") {
		t.Errorf("expected formatted debug line, got: %s", output)
	}
	if !strings.Contains(output, "boom: oops") {
		t.Errorf("expected formatted error line, got: %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	if out := buf.String(); !strings.Contains(out, "debug message") || !strings.Contains(out, "key=value") {
		t.Errorf("unexpected debug output: %s", out)
	}

	buf.Reset()
	Info("info message")
	if out := buf.String(); !strings.Contains(out, "info message") {
		t.Errorf("unexpected info output: %s", out)
	}
}
