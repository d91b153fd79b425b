// Package logging configures structured JSON logging for the service,
// with optional size-based log file rotation.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config describes where log records go and which level passes the filter.
// Level uses the textual form from the service configuration.
type Config struct {
	Level      string
	FilePath   string
	MaxSizeMB  int64
	MaxBackups int
	Console    bool
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		Console:    true,
	}
}

// ParseLevel converts a string log level to slog.Level. Unknown values fall
// back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// writer assembles the output target from the configuration. A config that
// enables neither console nor file output falls back to stdout so records
// are never dropped.
func (c Config) writer() (io.Writer, error) {
	var targets []io.Writer

	if c.Console {
		targets = append(targets, os.Stdout)
	}

	if c.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(c.FilePath), 0755); err != nil {
			return nil, err
		}
		fileWriter, err := NewRotatingFileWriter(c.FilePath, c.MaxSizeMB*1024*1024, c.MaxBackups)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fileWriter)
	}

	switch len(targets) {
	case 0:
		return os.Stdout, nil
	case 1:
		return targets[0], nil
	default:
		return io.MultiWriter(targets...), nil
	}
}

// NewLogger creates a JSON logger for the given configuration
func NewLogger(c Config) (*slog.Logger, error) {
	w, err := c.writer()
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(c.Level),
	})
	return slog.New(handler), nil
}

// SetDefault creates a logger for the configuration and installs it as the
// process-wide default
func SetDefault(c Config) error {
	logger, err := NewLogger(c)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
