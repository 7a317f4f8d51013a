package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamsync/config"
)

func TestParseFlagSet(t *testing.T) {
	t.Setenv("STREAMSYNC_SHUTDOWN_TIMEOUT", "3s")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := parseFlagSet(fs, []string{
		"-c", "streamsync.yaml",
		"--url", "ws://peer.example/s",
		"--metrics-port", "0",
		"--subscribe", "chat,presence",
	})
	require.NoError(t, err)

	assert.Equal(t, "streamsync.yaml", cfg.ConfigPath)
	assert.Equal(t, "ws://peer.example/s", cfg.URL)
	assert.Equal(t, 0, cfg.MetricsPort)
	assert.Equal(t, "chat,presence", cfg.Subscribe)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Minute, cfg.StatsInterval)
	assert.Empty(t, cfg.LogLevel)
}

func TestParseFlagSet_Unknown(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err := parseFlagSet(fs, []string{"--bogus"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	valid := func() *CLIConfig {
		return &CLIConfig{MetricsPort: -1, ShutdownTimeout: time.Second}
	}
	require.NoError(t, validateFlags(valid()))

	tests := []struct {
		name   string
		mutate func(*CLIConfig)
	}{
		{"missing config file", func(c *CLIConfig) { c.ConfigPath = filepath.Join(t.TempDir(), "nope.yaml") }},
		{"log level", func(c *CLIConfig) { c.LogLevel = "trace" }},
		{"log format", func(c *CLIConfig) { c.LogFormat = "xml" }},
		{"metrics port", func(c *CLIConfig) { c.MetricsPort = 65536 }},
		{"shutdown timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }},
		{"stats interval", func(c *CLIConfig) { c.StatsInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, validateFlags(cfg))
		})
	}

	bad := valid()
	bad.LogLevel = "trace"
	bad.ShowVersion = true
	assert.NoError(t, validateFlags(bad), "version skips validation")
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  url: ws://from-file.example/s
log:
  level: warn
subscribe: [chat]
`), 0o600))

	cfg, err := loadConfig(&CLIConfig{
		ConfigPath:  path,
		URL:         "nats://flag.example:4222/rooms",
		LogFormat:   "text",
		MetricsPort: 0,
		Subscribe:   "presence, typing",
	})
	require.NoError(t, err)

	assert.Equal(t, "nats://flag.example:4222/rooms", cfg.Transport.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 0, cfg.Metrics.Port)
	assert.Equal(t, []string{"presence", "typing"}, cfg.Subscribe)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	_, err := loadConfig(&CLIConfig{MetricsPort: -1, URL: "http://peer.example"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	logger := newLogger(f, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
}

func peerServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_StartAndHealth(t *testing.T) {
	srv := peerServer(t)

	cfg := config.Default()
	cfg.Transport.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	cfg.Metrics.Port = 0
	cfg.Resilience.MaxAttempts = 1
	cfg.Subscribe = []string{"chat"}

	a, err := newApp(cfg, newLogger(os.Stderr, "error", "text"))
	require.NoError(t, err)
	defer a.shutdown(2 * time.Second)

	healthy, detail := a.healthCheck()
	assert.True(t, healthy, "not yet connected is degraded, not unhealthy")
	assert.Contains(t, detail, "transport")

	require.NoError(t, a.start(context.Background()))
	assert.True(t, a.manager.IsConnected())
	assert.Equal(t, []string{"chat"}, a.manager.Subscriptions())

	healthy, detail = a.healthCheck()
	assert.True(t, healthy)
	assert.Contains(t, detail, "connected")
}
