package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.WorkerCount != 4 {
		t.Errorf("Expected worker count 4, got %d", cfg.WorkerCount)
	}

	if cfg.MaxRetries != 2 {
		t.Errorf("Expected max retries 2, got %d", cfg.MaxRetries)
	}

	if cfg.RequestDelay != 500*time.Millisecond {
		t.Errorf("Expected request delay 500ms, got %v", cfg.RequestDelay)
	}

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.RequestTimeout)
	}

	if cfg.RecrawlInterval != 0 {
		t.Errorf("Expected recrawl interval disabled, got %v", cfg.RecrawlInterval)
	}

	if cfg.UserAgent != "WebHarvest/1.0" {
		t.Errorf("Expected user agent 'WebHarvest/1.0', got %s", cfg.UserAgent)
	}

	if cfg.Limit != 0 {
		t.Errorf("Expected limit 0, got %d", cfg.Limit)
	}

	if cfg.DatabasePath != "./webharvest.db" {
		t.Errorf("Expected database path './webharvest.db', got %s", cfg.DatabasePath)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:    "valid config",
			config:  DefaultConfig(),
			wantErr: nil,
		},
		{
			name: "invalid worker count",
			config: &Config{
				WorkerCount:    0,
				RequestTimeout: 30 * time.Second,
				DatabasePath:   "./test.db",
			},
			wantErr: ErrInvalidWorkerCount,
		},
		{
			name: "negative max retries",
			config: &Config{
				WorkerCount:    4,
				MaxRetries:     -1,
				RequestTimeout: 30 * time.Second,
				DatabasePath:   "./test.db",
			},
			wantErr: ErrInvalidMaxRetries,
		},
		{
			name: "invalid timeout",
			config: &Config{
				WorkerCount:  4,
				DatabasePath: "./test.db",
			},
			wantErr: ErrInvalidTimeout,
		},
		{
			name: "negative recrawl interval",
			config: &Config{
				WorkerCount:     4,
				RequestTimeout:  30 * time.Second,
				RecrawlInterval: -time.Minute,
				DatabasePath:    "./test.db",
			},
			wantErr: ErrInvalidRecrawlInterval,
		},
		{
			name: "empty database path",
			config: &Config{
				WorkerCount:    4,
				RequestTimeout: 30 * time.Second,
			},
			wantErr: ErrEmptyDatabasePath,
		},
		{
			name: "broken exclude pattern",
			config: &Config{
				WorkerCount:     4,
				RequestTimeout:  30 * time.Second,
				DatabasePath:    "./test.db",
				ExcludePatterns: []string{"[unclosed"},
			},
			wantErr: ErrInvalidURLPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateMinimumDelay(t *testing.T) {
	cfg := &Config{
		WorkerCount:    4,
		RequestDelay:   10 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		DatabasePath:   "./test.db",
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.RequestDelay < 100*time.Millisecond {
		t.Errorf("Expected minimum delay to be enforced, got %v", cfg.RequestDelay)
	}
}
