package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/tlsutil"
	"github.com/c360/streamsync/resilience"
	"github.com/c360/streamsync/transport"
)

// Config is the complete application configuration.
type Config struct {
	Version    string            `json:"version,omitempty"`
	Transport  transport.Config  `json:"transport"`
	Dialer     DialerConfig      `json:"dialer"`
	Resilience resilience.Config `json:"resilience"`
	Metrics    MetricsConfig     `json:"metrics"`
	Log        LogConfig         `json:"log"`
	// Subscribe lists message types the CLI logs as they arrive.
	Subscribe []string `json:"subscribe,omitempty"`
}

// DialerConfig carries transport credentials and per-transport knobs. Only
// the fields of the transport selected by the URL scheme are used.
type DialerConfig struct {
	// WebSocket
	BearerToken       string        `json:"bearer_token,omitempty"`
	HandshakeTimeout  time.Duration `json:"handshake_timeout,omitempty"`
	EnableCompression bool          `json:"enable_compression,omitempty"`

	// NATS
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	User          string `json:"user,omitempty"`
	Password      string `json:"password,omitempty"`
	JetStream     bool   `json:"jetstream,omitempty"`

	// TLS applies to wss:// and to NATS. Leaving it empty keeps the
	// library defaults.
	TLS tlsutil.ClientConfig `json:"tls"`
}

// MetricsConfig controls the metrics and health HTTP server.
type MetricsConfig struct {
	// Port 0 disables the server.
	Port int    `json:"port"`
	Path string `json:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
)

// Default returns the configuration used when no file sets a field.
func Default() *Config {
	return &Config{
		Transport:  transport.DefaultConfig(),
		Resilience: resilience.DefaultConfig(),
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration, including the nested transport and
// resilience settings after their defaults are applied.
func (c *Config) Validate() error {
	if err := c.Transport.WithDefaults().Validate(); err != nil {
		return err
	}
	if err := c.Resilience.WithDefaults().Validate(); err != nil {
		return err
	}
	if c.Transport.URL != "" {
		if _, err := transport.DialerForURL(c.Transport.URL); err != nil {
			return err
		}
	}
	if err := c.Dialer.TLS.Validate(); err != nil {
		return err
	}

	if !contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return invalid("log.level %q is not one of %v", c.Log.Level, validLogLevels)
	}
	if !contains(validLogFormats, strings.ToLower(c.Log.Format)) {
		return invalid("log.format %q is not one of %v", c.Log.Format, validLogFormats)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalid("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.Metrics.Port > 0 && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path %q must start with /", c.Metrics.Path)
	}
	for i, t := range c.Subscribe {
		if strings.TrimSpace(t) == "" {
			return invalid("subscribe[%d] is empty", i)
		}
	}
	return nil
}

// Dialer returns the transport dialer for url, configured from c.
func (c DialerConfig) Dialer(url string) (transport.Dialer, error) {
	d, err := transport.DialerForURL(url)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if !c.TLS.IsZero() {
		if tlsConfig, err = tlsutil.LoadClientConfig(c.TLS); err != nil {
			return nil, err
		}
	}

	switch v := d.(type) {
	case *transport.WebSocketDialer:
		v.BearerToken = c.BearerToken
		v.HandshakeTimeout = c.HandshakeTimeout
		v.EnableCompression = c.EnableCompression
		v.TLSConfig = tlsConfig
	case *transport.NATSDialer:
		v.SubjectPrefix = c.SubjectPrefix
		v.Token = c.Token
		v.User = c.User
		v.Password = c.Password
		v.JetStream = c.JetStream
		v.TLSConfig = tlsConfig
	}
	return d, nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns indented JSON with credentials masked.
func (c *Config) String() string {
	redacted := c.Clone()
	for _, s := range []*string{
		&redacted.Dialer.BearerToken,
		&redacted.Dialer.Token,
		&redacted.Dialer.Password,
	} {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}

	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "validate")
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
