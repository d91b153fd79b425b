package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	logger, err := NewLogger(Config{Level: "info", Console: true})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "logs", "webharvest.log")

	logger, err := NewLogger(Config{
		Level:      "debug",
		FilePath:   logPath,
		MaxSizeMB:  1,
		MaxBackups: 2,
		Console:    false,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("Log file missing expected JSON record, got: %s", data)
	}
}

func TestWriterFallsBackToStdout(t *testing.T) {
	// Neither console nor file enabled: records still go somewhere
	w, err := Config{}.writer()
	if err != nil {
		t.Fatalf("writer() error = %v", err)
	}
	if w != io.Writer(os.Stdout) {
		t.Errorf("writer() = %T, want stdout", w)
	}
}

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("Expected info level, got %q", cfg.Level)
	}
	if !cfg.Console {
		t.Error("Expected console output enabled by default")
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("Expected 3 backups, got %d", cfg.MaxBackups)
	}
}
