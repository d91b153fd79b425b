package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidWorkerCount     = errors.New("worker_count must be greater than 0")
	ErrInvalidMaxRetries      = errors.New("max_retries must not be negative")
	ErrInvalidTimeout         = errors.New("request_timeout must be greater than 0")
	ErrInvalidRecrawlInterval = errors.New("recrawl_interval must not be negative")
	ErrEmptyDatabasePath      = errors.New("database_path cannot be empty")
	ErrInvalidURLPattern      = errors.New("URL pattern is not a valid regular expression")
)
