package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileWriterBasicWrite(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	w, err := NewRotatingFileWriter(logPath, 1024, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	n, err := w.Write([]byte("line one\n"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len("line one\n") {
		t.Errorf("Write() n = %d, want %d", n, len("line one\n"))
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(data) != "line one\n" {
		t.Errorf("Unexpected file content: %q", data)
	}
}

func TestRotatingFileWriterRotation(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "rotate.log")

	// Tiny max size so every write past the first forces rotation
	w, err := NewRotatingFileWriter(logPath, 16, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	first := strings.Repeat("a", 12) + "\n"
	second := strings.Repeat("b", 12) + "\n"

	if _, err := w.Write([]byte(first)); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if _, err := w.Write([]byte(second)); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	// Current file should hold the second write only
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read current file: %v", err)
	}
	if string(data) != second {
		t.Errorf("Current file = %q, want %q", data, second)
	}

	// First write should have been rotated to the .1 backup
	backup := filepath.Join(tempDir, "rotate.1.log")
	data, err = os.ReadFile(backup)
	if err != nil {
		t.Fatalf("Failed to read backup file: %v", err)
	}
	if string(data) != first {
		t.Errorf("Backup file = %q, want %q", data, first)
	}
}

func TestRotatingFileWriterDropsOldestBackup(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "drop.log")

	w, err := NewRotatingFileWriter(logPath, 8, 1)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	for _, s := range []string{"aaaaaa\n", "bbbbbb\n", "cccccc\n"} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// With maxBackups=1 only the .1 backup may exist
	if _, err := os.Stat(filepath.Join(tempDir, "drop.2.log")); !os.IsNotExist(err) {
		t.Errorf("Expected .2 backup to be dropped, stat err = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(tempDir, "drop.1.log"))
	if err != nil {
		t.Fatalf("Failed to read .1 backup: %v", err)
	}
	if string(data) != "bbbbbb\n" {
		t.Errorf("Backup content = %q, want %q", data, "bbbbbb\n")
	}
}
