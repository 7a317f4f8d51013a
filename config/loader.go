package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/streamsync/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "STREAMSYNC"

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// durationFields lists, per section, the keys that accept duration strings.
var durationFields = map[string][]string{
	"transport": {
		"connect_timeout", "reconnect_delay", "max_reconnect_delay",
		"heartbeat_interval", "stale_timeout", "stale_check_interval",
		"latency_probe_interval", "latency_probe_timeout", "batch_timeout",
		"retention_window", "retention_sweep_interval", "dedup_window",
	},
	"resilience": {"initial_delay", "max_delay", "cooldown"},
	"dialer":     {"handshake_timeout"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones
// key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// SetEnvPrefix changes the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment, then validates
// the result.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, err
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes one document in the given format ("json" or "yaml") and
// returns it as a map with durations normalized to nanoseconds.
func Parse(data []byte, format string) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(format) {
	case "json":
		if err := validateJSONDepth(data); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Parse", "check json structure")
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"config", "Parse", "decode json")
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"config", "Parse", "decode yaml")
		}
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unsupported format %q", errors.ErrInvalidConfig, format),
			"config", "Parse", "select format")
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "read "+path)
	}

	raw, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return raw, nil
}

func validateSchema(raw map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"config", "validateSchema", "run schema")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
		"config", "validateSchema", "schema validation")
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(raw map[string]any) error {
	for section, keys := range durationFields {
		m, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := parseDurationWithDays(s)
			if err != nil {
				return errors.WrapInvalid(fmt.Errorf("%w: %s.%s: %v", errors.ErrInvalidConfig, section, key, err),
					"config", "parseDurations", "parse duration")
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies <prefix>_* environment variables on top of the
// file layers.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	flag := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}

	overrides := []struct {
		suffix string
		apply  func(string) error
	}{
		{"URL", str(&cfg.Transport.URL)},
		{"LOG_LEVEL", str(&cfg.Log.Level)},
		{"LOG_FORMAT", str(&cfg.Log.Format)},
		{"METRICS_PORT", num(&cfg.Metrics.Port)},
		{"BATCH_SIZE", num(&cfg.Transport.BatchSize)},
		{"MAX_QUEUE_SIZE", num(&cfg.Transport.MaxQueueSize)},
		{"MAX_RECONNECT_ATTEMPTS", num(&cfg.Transport.MaxReconnectAttempts)},
		{"COMPRESSION", flag(&cfg.Transport.CompressionEnabled)},
		{"BEARER_TOKEN", str(&cfg.Dialer.BearerToken)},
		{"NATS_SUBJECT_PREFIX", str(&cfg.Dialer.SubjectPrefix)},
		{"NATS_TOKEN", str(&cfg.Dialer.Token)},
		{"NATS_USER", str(&cfg.Dialer.User)},
		{"NATS_PASSWORD", str(&cfg.Dialer.Password)},
		{"NATS_JETSTREAM", flag(&cfg.Dialer.JetStream)},
		{"SUBSCRIBE", func(v string) error {
			cfg.Subscribe = splitList(v)
			return nil
		}},
	}

	for _, o := range overrides {
		key := l.envPrefix + "_" + o.suffix
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "check "+key)
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s=%q: %v", errors.ErrInvalidConfig, key, val, err),
				"Loader", "applyEnvOverrides", "parse "+key)
		}
	}
	return nil
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
