// Package main runs a streamsync client: it connects to a peer over
// WebSocket or NATS, logs every subscribed message type it receives and
// exposes Prometheus metrics and a health endpoint until it is signalled.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/streamsync/config"
	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/health"
	"github.com/c360/streamsync/metric"
	"github.com/c360/streamsync/pkg/timestamp"
	"github.com/c360/streamsync/resilience"
	"github.com/c360/streamsync/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamsync"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}
	if cfg.Transport.URL == "" {
		return fmt.Errorf("no peer URL: set transport.url, --url or %s_URL", config.DefaultEnvPrefix)
	}

	logger.Info("Starting streamsync",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"url", cfg.Transport.URL)

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.start(ctx); err != nil {
		app.shutdown(cliCfg.ShutdownTimeout)
		return err
	}

	go app.reportStats(ctx, cliCfg.StatsInterval)

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	app.shutdown(cliCfg.ShutdownTimeout)
	logger.Info("streamsync shutdown complete")
	return nil
}

// loadConfig layers the config file, the environment and finally the
// command line flags.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlagOverrides(cfg, cliCfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.URL != "" {
		cfg.Transport.URL = cliCfg.URL
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.MetricsPort >= 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}
	if subs := splitList(cliCfg.Subscribe); len(subs) > 0 {
		cfg.Subscribe = subs
	}
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	manager  *transport.Manager
	executor *resilience.Executor
	monitor  *health.Monitor
	server   *metric.Server
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := metric.NewMetricsRegistry()
	registry.CoreMetrics().RecordBuildInfo(Version)

	dialer, err := cfg.Dialer.Dialer(cfg.Transport.URL)
	if err != nil {
		return nil, fmt.Errorf("create dialer: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		monitor:  health.NewMonitor(registry.CoreMetrics()),
	}

	a.manager, err = transport.NewManager(cfg.Transport,
		transport.WithLogger(logger),
		transport.WithName("transport"),
		transport.WithMetricsRegistry(registry),
		transport.WithDialer(dialer),
		transport.WithStateChangeCallback(func(from, to transport.State) {
			logger.Info("Connection state changed", "from", from.String(), "to", to.String())
		}),
		transport.WithTerminalFailureCallback(func(err error) {
			logger.Error("Gave up reconnecting", "error", err)
		}),
		transport.WithDropCallback(func(msg *transport.Message, reason string) {
			logger.Warn("Message dropped", "type", msg.Type, "id", msg.ID, "reason", reason)
		}),
		transport.WithHandlerErrorCallback(func(err *errors.HandlerError) {
			logger.Warn("Handler failed", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	a.executor, err = resilience.NewExecutor(cfg.Resilience,
		resilience.WithLogger(logger),
		resilience.WithName("resilience"),
		resilience.WithMetricsRegistry(registry),
	)
	if err != nil {
		_ = a.manager.Close(time.Second)
		return nil, fmt.Errorf("create executor: %w", err)
	}

	for _, msgType := range cfg.Subscribe {
		a.manager.Subscribe(msgType, a.logMessage, transport.PriorityMedium)
	}

	if cfg.Metrics.Port > 0 {
		a.server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, a.healthCheck)
	}
	return a, nil
}

// start brings up the metrics server and makes the first connection. A
// transient connect failure is not fatal: the transport keeps reconnecting
// on its own schedule.
func (a *app) start(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.logger.Info("Metrics server listening", "addr", a.server.Addr(), "path", a.cfg.Metrics.Path)
	}

	_, err := resilience.ExecuteWithRetry(ctx, a.executor, "connect",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.manager.Connect(ctx, "")
		})
	switch {
	case err == nil:
		a.logger.Info("Connected", "url", a.cfg.Transport.URL, "subscriptions", a.manager.Subscriptions())
	case errors.IsInvalid(err) || errors.IsFatal(err):
		return fmt.Errorf("connect: %w", err)
	default:
		a.logger.Warn("Initial connect failed, reconnecting in background", "error", err)
	}
	return nil
}

func (a *app) logMessage(_ context.Context, msg *transport.Message) error {
	a.logger.Info("Message received",
		"type", msg.Type,
		"id", msg.ID,
		"priority", msg.Priority.String(),
		"sent_at", timestamp.Format(msg.Timestamp),
		"payload_bytes", len(msg.Payload))
	return nil
}

// healthCheck feeds the /health endpoint.
func (a *app) healthCheck() (bool, string) {
	a.monitor.Collect(map[string]health.Reporter{
		"transport":  a.manager,
		"resilience": a.executor,
	})
	status := a.monitor.AggregateHealth(appName)

	detail, err := json.Marshal(status)
	if err != nil {
		return !status.IsUnhealthy(), status.Message
	}
	return !status.IsUnhealthy(), string(detail)
}

func (a *app) reportStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := a.manager.Metrics()
			a.logger.Info("Transport stats",
				"state", a.manager.State().String(),
				"sent", m.MessagesSent,
				"received", m.MessagesReceived,
				"dropped", m.MessagesDropped,
				"batches", m.BatchesSent,
				"reconnects", m.ReconnectCount,
				"queue_size", m.QueueSize,
				"latency", m.Latency)
		}
	}
}

func (a *app) shutdown(timeout time.Duration) {
	if err := a.manager.Close(timeout); err != nil {
		a.logger.Warn("Transport close incomplete", "error", err)
	}
	a.executor.Close()

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.server.Stop(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}
