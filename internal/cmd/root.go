// Package cmd provides the command-line interface for WebHarvest.
// It handles command parsing, configuration loading, and service execution.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hfujino/webharvest/internal/api"
	"github.com/hfujino/webharvest/internal/config"
	"github.com/hfujino/webharvest/internal/fetcher"
	"github.com/hfujino/webharvest/internal/logging"
	"github.com/hfujino/webharvest/internal/metrics"
	"github.com/hfujino/webharvest/internal/pipeline"
	"github.com/hfujino/webharvest/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "webharvest [URLs...]",
	Short: "A crawl service that fetches, extracts, and deduplicates web pages",
	Long: `WebHarvest fetches pages starting from a set of seed URLs, extracts
their text content and outbound links, deduplicates identical content,
and stores the results in a local SQLite database.

An optional HTTP API accepts new seed URLs and serves stored pages.`,
	Args: cobra.ArbitraryArgs,
	RunE: runService,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./webharvest.yml)")

	// Configuration management flags
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawl pipeline flags
	rootCmd.Flags().IntP("workers", "w", 4, "Number of concurrent workers")
	rootCmd.Flags().IntP("max-retries", "m", 2, "Retry attempts for transient fetch failures")
	rootCmd.Flags().DurationP("delay", "r", 500*time.Millisecond, "Per-host delay between requests")
	rootCmd.Flags().DurationP("timeout", "t", 30*time.Second, "HTTP request timeout")
	rootCmd.Flags().Duration("recrawl-interval", 0, "Re-crawl fetched pages older than this (0=disabled)")
	rootCmd.Flags().StringP("user-agent", "u", "WebHarvest/1.0", "HTTP User-Agent header")
	rootCmd.Flags().IntP("limit", "l", 0, "Stop after N pages (0=unlimited)")
	rootCmd.Flags().Bool("follow-external-hosts", false, "Follow links to hosts outside the seed set")

	// URL filtering flags
	rootCmd.Flags().StringSlice("include-patterns", []string{}, "Regex patterns for URLs to include")
	rootCmd.Flags().StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")

	// HTTP API flag
	rootCmd.Flags().String("listen", "", "Address for the seed/query API, e.g. :8080 (empty=disabled)")

	// Database flags
	rootCmd.Flags().StringP("database", "d", "./webharvest.db", "Path to SQLite database file")

	// Logging flags
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-file", "", "Log file path (empty=stdout only)")

	// Bind flags to viper
	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"worker_count", "workers"},
		{"max_retries", "max-retries"},
		{"request_delay", "delay"},
		{"request_timeout", "timeout"},
		{"recrawl_interval", "recrawl-interval"},
		{"user_agent", "user-agent"},
		{"limit", "limit"},
		{"follow_external_hosts", "follow-external-hosts"},
		{"include_patterns", "include-patterns"},
		{"exclude_patterns", "exclude-patterns"},
		{"listen_addr", "listen"},
		{"database_path", "database"},
		{"log_level", "log-level"},
		{"log_file", "log-file"},
	}

	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.Flags().Lookup(bind.flagName)); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("webharvest")
	}

	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvPrefix("WH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("WebHarvest/%s", version)
	}
	return "WebHarvest/dev"
}

func showCurrentConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Printf("# Current WebHarvest Configuration\n")
	fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("# Configuration file search paths: ./webharvest.yml\n")
	fmt.Printf("# Environment variables prefix: WH_\n\n")

	fmt.Print(string(yamlData))

	fmt.Printf("\n# Configuration source priority:\n")
	fmt.Printf("# 1. Command-line arguments (highest priority)\n")
	fmt.Printf("# 2. Environment variables (WH_ prefix)\n")
	fmt.Printf("# 3. Configuration file (webharvest.yml)\n")
	fmt.Printf("# 4. Default values (lowest priority)\n")

	return nil
}

func runService(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg := config.DefaultConfig()

	// Set seed URLs from command line arguments
	cfg.SeedURLs = args

	// Override with viper values
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Update User-Agent with dynamic version if not explicitly set
	if !cmd.Flags().Changed("user-agent") && cfg.UserAgent == "WebHarvest/1.0" {
		cfg.UserAgent = generateUserAgent()
	}

	// Handle --show-config: display current configuration and exit
	if showConfig {
		return showCurrentConfig(cfg)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.FilePath = cfg.LogFile
	if err := logging.SetDefault(logCfg); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	// Validate startup conditions: running without URLs requires an existing
	// database to resume from, unless the API is enabled to accept seeds
	if len(cfg.SeedURLs) == 0 && cfg.ListenAddr == "" {
		if _, err := os.Stat(cfg.DatabasePath); os.IsNotExist(err) {
			return fmt.Errorf("no URLs provided and no existing database found at %s\nUsage: %s [URLs...] or ensure database exists for resume operation",
				cfg.DatabasePath, os.Args[0])
		}

		tempStorage, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
		}

		hasWork, err := tempStorage.HasQueuedItems()
		if err != nil {
			if closeErr := tempStorage.Close(); closeErr != nil {
				return fmt.Errorf("failed to check frontier: %w (close error: %v)", err, closeErr)
			}
			return fmt.Errorf("failed to check frontier: %w", err)
		}
		if closeErr := tempStorage.Close(); closeErr != nil {
			return fmt.Errorf("failed to close temporary storage: %w", closeErr)
		}

		if !hasWork {
			fmt.Printf("No URLs provided and no pending work found in database %s\n", cfg.DatabasePath)
			fmt.Printf("Nothing to crawl. Exiting.\n")
			return nil
		}

		fmt.Printf("Resuming crawl from existing database: %s\n", cfg.DatabasePath)
	}

	// Create database directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	metrics.Init()

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	f := fetcher.New(cfg.UserAgent, cfg.RequestTimeout, cfg.MaxRetries)

	p, err := pipeline.NewPipeline(cfg, store, f)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer func() { _ = p.Stop() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var apiServer *http.Server
	if cfg.ListenAddr != "" {
		apiServer = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.NewServer(p, store).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Starting API server", "addr", cfg.ListenAddr)
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("API server failed", "error", err)
			}
		}()
	}

	slog.Info("Starting crawl service",
		"seed_urls", len(cfg.SeedURLs),
		"workers", cfg.WorkerCount,
		"limit", cfg.Limit,
		"database", cfg.DatabasePath,
		"version", version)

	runErr := p.Start(ctx, cfg.SeedURLs)

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
	}

	return runErr
}
