package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/tlsutil"
	"github.com/c360/streamsync/transport"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unsupported scheme", func(c *Config) { c.Transport.URL = "http://peer.example/stream" }},
		{"url without host", func(c *Config) { c.Transport.URL = "ws:///stream" }},
		{"negative transport value", func(c *Config) { c.Transport.BatchSize = -1 }},
		{"resilience multiplier", func(c *Config) { c.Resilience.Multiplier = 0.5 }},
		{"log level", func(c *Config) { c.Log.Level = "trace" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"blank subscription", func(c *Config) { c.Subscribe = []string{"chat", " "} }},
		{"tls key without cert", func(c *Config) { c.Dialer.TLS.KeyFile = "client.key" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
		})
	}
}

func TestConfig_ValidateAllowsDisabledMetricsWithoutPath(t *testing.T) {
	cfg := Default()
	cfg.Metrics = MetricsConfig{Port: 0}
	assert.NoError(t, cfg.Validate())
}

func TestDialerConfig_Dialer(t *testing.T) {
	dc := DialerConfig{
		BearerToken:      "tok",
		HandshakeTimeout: 3 * time.Second,
		SubjectPrefix:    "rooms",
		User:             "u",
		Password:         "p",
		JetStream:        true,
	}

	d, err := dc.Dialer("wss://peer.example/stream")
	require.NoError(t, err)
	ws, ok := d.(*transport.WebSocketDialer)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, "tok", ws.BearerToken)
	assert.Equal(t, 3*time.Second, ws.HandshakeTimeout)

	d, err = dc.Dialer("nats://peer.example:4222")
	require.NoError(t, err)
	nd, ok := d.(*transport.NATSDialer)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, "rooms", nd.SubjectPrefix)
	assert.Equal(t, "u", nd.User)
	assert.True(t, nd.JetStream)

	assert.Nil(t, nd.TLSConfig, "no tls settings keeps library defaults")

	_, err = dc.Dialer("ftp://peer.example")
	assert.ErrorIs(t, err, errors.ErrInvalidAddress)
}

func TestDialerConfig_DialerWithTLS(t *testing.T) {
	dc := DialerConfig{TLS: tlsutil.ClientConfig{ServerName: "sync.example.com", MinVersion: "1.3"}}

	d, err := dc.Dialer("wss://peer.example/stream")
	require.NoError(t, err)
	ws := d.(*transport.WebSocketDialer)
	require.NotNil(t, ws.TLSConfig)
	assert.Equal(t, "sync.example.com", ws.TLSConfig.ServerName)

	d, err = dc.Dialer("nats://peer.example:4222")
	require.NoError(t, err)
	assert.NotNil(t, d.(*transport.NATSDialer).TLSConfig)

	dc.TLS.CAFiles = []string{filepath.Join(t.TempDir(), "missing.pem")}
	_, err = dc.Dialer("wss://peer.example/stream")
	assert.True(t, errors.IsFatal(err))
}

func TestConfig_StringRedactsCredentials(t *testing.T) {
	cfg := Default()
	cfg.Dialer.BearerToken = "bearer-secret"
	cfg.Dialer.Password = "nats-secret"
	cfg.Dialer.User = "alice"

	s := cfg.String()
	assert.NotContains(t, s, "bearer-secret")
	assert.NotContains(t, s, "nats-secret")
	assert.Contains(t, s, "alice")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "bearer-secret", cfg.Dialer.BearerToken, "original untouched")
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Subscribe = []string{"chat"}

	clone := cfg.Clone()
	if diff := cmp.Diff(cfg, clone); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	clone.Subscribe[0] = "presence"
	clone.Transport.BatchSize = 99
	assert.Equal(t, "chat", cfg.Subscribe[0])
	assert.Equal(t, Default().Transport.BatchSize, cfg.Transport.BatchSize)

	var nilCfg *Config
	assert.NotNil(t, nilCfg.Clone())
}
