package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration. Empty strings and a negative
// metrics port mean "not set", leaving the config file and environment in
// charge.
type CLIConfig struct {
	ConfigPath      string
	URL             string
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	Subscribe       string
	ShutdownTimeout time.Duration
	StatsInterval   time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	// flag.CommandLine exits on parse errors
	cfg, _ := parseFlagSet(flag.CommandLine, os.Args[1:])
	return cfg
}

func parseFlagSet(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("STREAMSYNC_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: STREAMSYNC_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("STREAMSYNC_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: STREAMSYNC_CONFIG)")

	fs.StringVar(&cfg.URL, "url", "", "Peer URL: ws://, wss:// or nats:// (overrides STREAMSYNC_URL)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format: json, text")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", -1, "Metrics and health port, 0 to disable")
	fs.StringVar(&cfg.Subscribe, "subscribe", "", "Comma separated message types to log")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("STREAMSYNC_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: STREAMSYNC_SHUTDOWN_TIMEOUT)")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval",
		getEnvDuration("STREAMSYNC_STATS_INTERVAL", time.Minute),
		"Interval between transport stats log lines, 0 to disable (env: STREAMSYNC_STATS_INTERVAL)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", getEnvBool("STREAMSYNC_VALIDATE", false),
		"Validate configuration and exit")

	if fs == flag.CommandLine {
		fs.Usage = printDetailedHelp
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive: %s", cfg.ShutdownTimeout)
	}
	if cfg.StatsInterval < 0 {
		return fmt.Errorf("invalid stats interval: %s", cfg.StatsInterval)
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Prioritized, batched message sync client

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Connect to a WebSocket peer and log chat messages
  %s --url=wss://sync.example.com/stream --subscribe=chat

  # Use a config file with text logs
  %s --config=streamsync.yaml --log-level=debug --log-format=text

  # Sync over NATS, configured from the environment
  export STREAMSYNC_URL=nats://localhost:4222/rooms/1
  export STREAMSYNC_NATS_JETSTREAM=true
  %s

  # Validate configuration only
  %s --config=streamsync.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
