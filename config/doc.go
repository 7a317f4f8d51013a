// Package config loads the streamsync application configuration.
//
// Configuration is assembled in layers: built-in defaults, then each file
// added to the Loader in order, then STREAMSYNC_* environment variables.
// Files may be JSON or YAML, chosen by extension. Every file is checked
// against an embedded JSON schema before it is merged, so unknown keys and
// wrongly typed values are rejected with the offending field named.
//
// dialer.tls configures TLS for wss:// and NATS connections: extra CA files,
// a client certificate for mTLS, a server name override and a minimum
// version.
//
// Durations are written as Go duration strings ("250ms", "1m30s"), whole
// days ("2d") or integer nanoseconds.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.yaml") // Overrides base
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	dialer, err := cfg.Dialer.Dialer(cfg.Transport.URL)
//
// # Environment Overrides
//
//	STREAMSYNC_URL                     transport.url
//	STREAMSYNC_LOG_LEVEL               log.level
//	STREAMSYNC_LOG_FORMAT              log.format
//	STREAMSYNC_METRICS_PORT            metrics.port
//	STREAMSYNC_BATCH_SIZE              transport.batch_size
//	STREAMSYNC_MAX_QUEUE_SIZE          transport.max_queue_size
//	STREAMSYNC_MAX_RECONNECT_ATTEMPTS  transport.max_reconnect_attempts
//	STREAMSYNC_COMPRESSION             transport.compression_enabled
//	STREAMSYNC_BEARER_TOKEN            dialer.bearer_token
//	STREAMSYNC_NATS_SUBJECT_PREFIX     dialer.subject_prefix
//	STREAMSYNC_NATS_TOKEN              dialer.token
//	STREAMSYNC_NATS_USER               dialer.user
//	STREAMSYNC_NATS_PASSWORD           dialer.password
//	STREAMSYNC_NATS_JETSTREAM          dialer.jetstream
//	STREAMSYNC_SUBSCRIBE               subscribe (comma separated)
//
// # Security
//
// Config files must be regular files under 1MB with a .json, .yaml or .yml
// extension, and relative paths may not leave the working directory. JSON
// nesting is capped before decoding.
package config
