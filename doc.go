// Package streamsync keeps a client in sync with a server over a single
// unreliable connection: prioritized batching, an outage queue replayed on
// reconnect, heartbeat and staleness detection, and type-routed dispatch of
// inbound messages.
//
// # Layout
//
//   - transport: the connection Manager, message model, wire codec and the
//     WebSocket and NATS dialers
//   - resilience: retry with backoff plus a per-operation circuit breaker for
//     calls made on top of the transport
//   - config: layered JSON/YAML configuration with schema validation and
//     environment overrides
//   - health, metric, errors: status reporting, Prometheus metrics and
//     classified errors shared by every package
//   - pkg/buffer, pkg/worker, pkg/retry, pkg/cache, pkg/timestamp,
//     pkg/tlsutil: small building blocks used by the packages above
//   - cmd/streamsync: a client that connects, logs subscribed message types
//     and serves /metrics and /health
//
// # Delivery guarantees
//
// Delivery is at most once across process restarts and best effort within a
// process: queued messages survive reconnects but are purged after the
// retention window, and a batch that keeps failing is dropped after
// MaxRetries. Applications that need guaranteed delivery acknowledge at the
// application level.
package streamsync
