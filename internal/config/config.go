// Package config provides configuration management for the crawl service.
// It defines configuration structures and default values for the pipeline,
// storage, and HTTP API.
package config

import (
	"regexp"
	"time"
)

// Config holds the full service configuration. It is loaded once at startup
// and treated as immutable for the lifetime of a crawl run.
type Config struct {
	// Crawl pipeline parameters
	SeedURLs        []string      `mapstructure:"seed_urls" yaml:"seed_urls"`               // Starting URLs for crawling
	WorkerCount     int           `mapstructure:"worker_count" yaml:"worker_count"`         // Number of concurrent workers
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`           // Retry attempts for transient fetch failures
	RequestDelay    time.Duration `mapstructure:"request_delay" yaml:"request_delay"`       // Per-host politeness delay
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`   // HTTP request timeout
	RecrawlInterval time.Duration `mapstructure:"recrawl_interval" yaml:"recrawl_interval"` // Re-crawl fetched pages after this age (0=disabled)
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`             // HTTP User-Agent header
	Limit           int           `mapstructure:"limit" yaml:"limit"`                       // Stop after N pages (0=unlimited)

	// URL filtering for discovered links
	FollowExternalHosts bool     `mapstructure:"follow_external_hosts" yaml:"follow_external_hosts"` // Allow enqueueing links on hosts outside the seed set
	IncludePatterns     []string `mapstructure:"include_patterns" yaml:"include_patterns"`           // Regex patterns for URLs to include
	ExcludePatterns     []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`           // Regex patterns for URLs to exclude

	// HTTP API
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"` // Address for the seed/query API (empty=disabled)

	// Database configuration
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file

	// Logging
	LogLevel string `mapstructure:"log_level" yaml:"log_level"` // debug, info, warn, error
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`   // Log file path (empty=stdout only)
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:     4,
		MaxRetries:      2,
		RequestDelay:    500 * time.Millisecond,
		RequestTimeout:  30 * time.Second,
		RecrawlInterval: 0, // disabled
		UserAgent:       "WebHarvest/1.0",
		Limit:           0, // unlimited
		DatabasePath:    "./webharvest.db",
		LogLevel:        "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Note: SeedURLs are optional - the pipeline can resume from an existing frontier

	if c.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}

	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RecrawlInterval < 0 {
		return ErrInvalidRecrawlInterval
	}

	// Enforce minimum delay of 100ms for proper frontier coordination
	if c.RequestDelay < 100*time.Millisecond {
		c.RequestDelay = 100 * time.Millisecond
	}

	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}

	for _, pattern := range append(append([]string{}, c.IncludePatterns...), c.ExcludePatterns...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return ErrInvalidURLPattern
		}
	}

	return nil
}
