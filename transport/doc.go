// Package transport keeps a client synchronized with a server over one
// long-lived, unreliable connection.
//
// A Manager owns the connection. Outbound messages are batched and written
// in priority order (critical first, FIFO within a priority); a critical
// message flushes immediately. While no connection is live, messages wait in
// a bounded outage queue that is replayed, sorted and chunked, on the next
// successful connection. Entries older than the retention window are purged.
//
// Lost connections are retried with exponential backoff up to a configured
// number of attempts. Heartbeats keep idle connections warm, a staleness
// check tears down connections that carry no traffic, and latency probes
// feed a smoothed round-trip gauge.
//
// Inbound frames are decoded, sorted and handed to subscribers by message
// type. Critical subscribers run inline on the read path; all others run on a
// bounded worker pool, so a slow handler cannot stall the connection. With
// Config.DedupWindow set, a message whose id was already delivered within the
// window is dropped before dispatch.
//
// Two transports are provided: WebSocketDialer (gorilla/websocket) and
// NATSDialer (NATS subjects <prefix>.up and <prefix>.down, optionally
// publishing through JetStream).
//
// Basic usage:
//
//	mgr, err := transport.NewManager(transport.Config{URL: "wss://sync.example.com/ws"},
//	    transport.WithLogger(logger),
//	    transport.WithMetricsRegistry(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(5 * time.Second)
//
//	unsubscribe := mgr.Subscribe("chat", func(ctx context.Context, msg *transport.Message) error {
//	    var body ChatMessage
//	    return msg.Decode(&body)
//	}, transport.PriorityMedium)
//	defer unsubscribe()
//
//	if err := mgr.Connect(ctx, ""); err != nil {
//	    logger.Warn("initial connect failed, retrying in background", "error", err)
//	}
//	mgr.Send("chat", ChatMessage{Text: "hi"}, transport.PriorityHigh)
package transport
