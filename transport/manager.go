package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/health"
	"github.com/c360/streamsync/metric"
	"github.com/c360/streamsync/pkg/cache"
	"github.com/c360/streamsync/pkg/worker"
)

// Manager owns one logical connection to a peer. It batches outbound
// messages, queues them through outages, reconnects with backoff and
// dispatches inbound messages to subscribers.
//
// All state lives behind mu and every state transition goes through
// setStateLocked. Observer callbacks collected while the lock is held run
// after it is released.
type Manager struct {
	cfg      Config
	policy   ReconnectPolicy
	name     string
	logger   *slog.Logger
	dialer   Dialer
	registry *metric.MetricsRegistry
	prom     *promMetrics

	subs       *subscriptionRegistry
	dispatcher *dispatcher
	pool       *worker.Pool[handlerJob]
	outage     *outageQueue
	seen       *cache.Cache[struct{}] // nil unless DedupWindow > 0

	onStateChange  func(from, to State)
	onTerminal     func(error)
	onOverflow     func(*Message)
	onDrop         func(*Message, string)
	onHandlerError func(*errors.HandlerError)

	baseCtx context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup
	started time.Time

	mu    sync.Mutex
	state State
	url   string
	// gen changes whenever the live connection is replaced or torn down.
	gen        uint64
	live       *liveConn
	sched      *batchScheduler
	dialCancel context.CancelFunc

	// suppressed is set until the first Connect and by Disconnect.
	suppressed     bool
	exhausted      bool
	attempts       int
	reconnectTimer *time.Timer
	reconnectSeq   uint64

	lastActivity time.Time
	probes       map[string]time.Time
	sweepTimer   *time.Timer
	stats        counters
	errorCount   int
	closed       bool

	events []func()
}

// NewManager builds a disconnected manager. It does not dial until Connect.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		policy:     cfg.ReconnectPolicy(),
		name:       "transport",
		logger:     slog.Default(),
		state:      StateDisconnected,
		url:        cfg.URL,
		suppressed: true,
		probes:     make(map[string]time.Time),
		started:    time.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = m.logger.With("component", m.name)

	prom, err := newPromMetrics(m.registry, m.name)
	if err != nil {
		return nil, errors.WrapTransient(err, "Manager", "NewManager", "metrics registration")
	}
	m.prom = prom

	m.outage, err = newOutageQueue(cfg, m.registry, m.name)
	if err != nil {
		return nil, errors.WrapTransient(err, "Manager", "NewManager", "create outage queue")
	}

	if cfg.DedupWindow > 0 {
		m.seen, err = cache.New(cfg.DedupSize, cfg.DedupWindow,
			cache.WithMetrics[struct{}](m.registry, m.name+"_dedup"))
		if err != nil {
			return nil, errors.WrapTransient(err, "Manager", "NewManager", "create dedup window")
		}
	}

	m.subs = newSubscriptionRegistry()
	m.dispatcher = &dispatcher{
		registry: m.subs,
		logger:   m.logger,
		onError:  m.handlerFailed,
	}

	poolOpts := []worker.Option[handlerJob]{
		worker.WithErrorHandler(func(job handlerJob, err error) {
			m.dispatcher.report(job.msg, err)
		}),
	}
	if m.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[handlerJob](m.registry, m.name+"_handlers"))
	}
	pool, err := worker.NewPool(cfg.HandlerWorkers, cfg.HandlerQueueSize, m.dispatcher.run, poolOpts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Manager", "NewManager", "create handler pool")
	}
	m.pool = pool
	m.dispatcher.pool = pool

	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	if err := pool.Start(m.baseCtx); err != nil {
		m.cancel()
		return nil, errors.WrapFatal(err, "Manager", "NewManager", "start handler pool")
	}

	return m, nil
}

// Connect dials url, or the last used or configured URL when url is empty,
// and blocks until the connection is up, ctx is done or ConnectTimeout
// elapses. It is a no-op when already connected.
//
// A failure moves the manager to StateError and schedules automatic
// reconnection; the error is returned only to this caller. A malformed
// address schedules nothing.
func (m *Manager) Connect(ctx context.Context, url string) error {
	m.mu.Lock()
	if m.closed {
		m.unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, "Manager", "Connect", "manager closed")
	}
	if m.state == StateConnected {
		m.unlock()
		return nil
	}

	if url == "" {
		url = m.url
	}

	// A rejected address leaves the reconnect bookkeeping of the previous
	// URL untouched.
	dialer, err := m.dialerFor(url)
	if err != nil {
		m.recordErrorLocked("connect")
		m.setStateLocked(StateError)
		m.unlock()
		return &errors.ConnectionError{URL: url, Err: err}
	}

	m.suppressed = false
	m.exhausted = false
	m.attempts = 0
	m.cancelReconnectLocked()
	m.url = url

	gen := m.beginAttemptLocked()
	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	m.dialCancel = cancel
	m.unlock()
	defer cancel()

	m.logger.Info("Connecting", "url", url)
	conn, err := dialer.Dial(dctx, url)
	return m.finishAttempt(gen, url, conn, dialError(dctx, err))
}

// Disconnect closes the connection cleanly, stops all timers and suppresses
// automatic reconnection until the next Connect. Messages still pending are
// kept in the outage queue. Calling it again has no effect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.unlock()

	m.suppressed = true
	m.cancelReconnectLocked()
	if m.live != nil || m.state != StateDisconnected {
		m.logger.Info("Disconnecting", "url", m.url)
	}
	m.detachLocked()
	m.setStateLocked(StateDisconnected)
}

// Send queues a message for best-effort delivery. It never blocks on I/O and
// never fails; dropped messages are visible through metrics and callbacks.
func (m *Manager) Send(msgType string, payload any, priority Priority) {
	msg, err := NewMessage(msgType, payload, priority)

	m.mu.Lock()
	defer m.unlock()

	if err != nil {
		m.logger.Warn("Dropping message that cannot be built", "type", msgType, "error", err)
		m.stats.dropped++
		m.prom.messagesDropped.WithLabelValues(dropEncode).Inc()
		return
	}
	if m.closed {
		m.logger.Warn("Dropping message sent after close", "type", msgType, "id", msg.ID)
		m.dropLocked(msg, dropClosed)
		return
	}

	if m.state == StateConnected && m.live != nil {
		if batch, reason := m.sched.add(msg); batch != nil {
			m.logger.Debug("Flushing batch", "reason", reason, "size", len(batch))
			m.live.enqueue(outboundBatch{msgs: batch})
		}
		return
	}

	m.queueLocked(msg)
	m.scheduleReconnectLocked()
}

// Subscribe registers h for msgType. Critical subscriptions run inline on the
// read path, in registration order; all others run on the handler pool.
func (m *Manager) Subscribe(msgType string, h Handler, priority Priority) Unsubscribe {
	if msgType == "" || h == nil {
		m.logger.Warn("Ignoring invalid subscription", "type", msgType, "nil_handler", h == nil)
		return func() {}
	}

	unsubscribe := m.subs.add(msgType, h, priority)
	m.logger.Debug("Subscribed", "type", msgType, "priority", priority)
	return unsubscribe
}

// Subscriptions lists the message types that have at least one handler.
func (m *Manager) Subscriptions() []string {
	return m.subs.types()
}

// IsConnected reports whether a connection is live.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionState returns a snapshot of the connection.
func (m *Manager) ConnectionState() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ConnectionState{
		State:             m.state,
		URL:               m.url,
		ReconnectAttempts: m.attempts,
		LastMessageTime:   m.lastActivity,
		Latency:           m.stats.latency,
		Exhausted:         m.exhausted,
	}
}

// QueueSize counts messages accepted but not yet written: the outage queue,
// the pending batch and batches waiting for the writer.
func (m *Manager) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueSizeLocked()
}

// ClearQueue discards every unsent message and resets the counters.
func (m *Manager) ClearQueue() {
	m.mu.Lock()
	defer m.unlock()

	n := m.outage.clear()
	if m.sched != nil {
		n += len(m.sched.takeAll())
	}
	if m.live != nil {
		for _, b := range m.live.outbox {
			if !b.control {
				n += len(b.msgs)
			}
		}
		m.live.outbox = nil
	}
	if m.sweepTimer != nil {
		m.sweepTimer.Stop()
		m.sweepTimer = nil
	}

	m.stats = counters{}
	m.prom.latency.Set(0)
	m.prom.queueSize.Set(0)
	m.logger.Info("Queue cleared", "discarded", n)
}

// Metrics returns a snapshot of the transport counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Metrics{
		MessagesSent:     m.stats.sent,
		MessagesReceived: m.stats.received,
		MessagesDropped:  m.stats.dropped,
		BatchesSent:      m.stats.batches,
		ReconnectCount:   m.stats.reconnects,
		HandlerErrors:    m.stats.handlerErrors,
		Duplicates:       m.stats.duplicates,
		AverageBatchSize: m.stats.averageBatchSize(),
		Latency:          m.stats.latency,
		QueueSize:        m.queueSizeLocked(),
	}
}

// Health reports healthy while connected, unhealthy once reconnection is
// exhausted and degraded otherwise.
func (m *Manager) Health() health.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	var status health.Status
	switch {
	case m.state == StateConnected:
		status = health.NewHealthy(m.name, "connected")
	case m.exhausted:
		status = health.FromError(m.name, &errors.ConnectionError{
			URL: m.url, Attempt: m.attempts, Err: errors.ErrReconnectExceeded,
		})
	case m.attempts > 0:
		status = health.Degrade(m.name, fmt.Sprintf("%s, reconnect attempt %d", m.state, m.attempts))
	default:
		status = health.Degrade(m.name, m.state.String())
	}

	return status.WithMetrics(&health.Metrics{
		Uptime:            time.Since(m.started),
		ErrorCount:        m.errorCount,
		MessagesProcessed: m.stats.received,
		QueueDepth:        m.queueSizeLocked(),
		LastActivity:      m.lastActivity,
	})
}

// Close disconnects, stops the handler pool and waits up to timeout for the
// connection goroutines to exit. Metrics are unregistered.
func (m *Manager) Close(timeout time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.unlock()
		return nil
	}
	m.suppressed = true
	m.cancelReconnectLocked()
	m.detachLocked()
	m.setStateLocked(StateDisconnected)
	m.closed = true
	if m.sweepTimer != nil {
		m.sweepTimer.Stop()
		m.sweepTimer = nil
	}
	m.unlock()

	m.cancel()

	var errs []error
	done := make(chan struct{})
	go func() {
		m.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		errs = append(errs, errors.WrapTransient(errors.ErrConnectionTimeout, "Manager", "Close",
			"wait for connection goroutines"))
	}

	if err := m.pool.Stop(timeout); err != nil {
		errs = append(errs, errors.WrapTransient(err, "Manager", "Close", "stop handler pool"))
	}

	if m.registry != nil {
		m.registry.UnregisterService(m.name)
		m.registry.UnregisterService(m.name + "_outage")
		m.registry.UnregisterService(m.name + "_dedup")
		m.registry.UnregisterService("worker_" + m.name + "_handlers")
	}

	m.logger.Info("Transport closed")
	return stderrors.Join(errs...)
}

// --- connection lifecycle ---------------------------------------------------

type outboundBatch struct {
	msgs []*Message
	// control batches (heartbeats, probes) are never retried or replayed.
	control bool
}

// liveConn is one established connection and its writer queue.
type liveConn struct {
	conn   Conn
	outbox []outboundBatch // guarded by Manager.mu
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newLiveConn(conn Conn) *liveConn {
	return &liveConn{
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (lc *liveConn) enqueue(b outboundBatch) {
	lc.outbox = append(lc.outbox, b)
	select {
	case lc.wake <- struct{}{}:
	default:
	}
}

func (lc *liveConn) stop() {
	lc.once.Do(func() { close(lc.done) })
}

func (m *Manager) dialerFor(url string) (Dialer, error) {
	if m.dialer == nil {
		return DialerForURL(url)
	}
	if _, err := ParseAddress(url); err != nil {
		return nil, err
	}
	return m.dialer, nil
}

// dialError marks a dial that ran out of time as a timeout.
func dialError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && !stderrors.Is(err, errors.ErrConnectionTimeout) {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionTimeout, err),
			"Manager", "Connect", "dial")
	}
	return err
}

// beginAttemptLocked tears down whatever is live and enters StateConnecting.
// The returned generation identifies the attempt.
func (m *Manager) beginAttemptLocked() uint64 {
	m.detachLocked()
	m.setStateLocked(StateConnecting)
	return m.gen
}

// finishAttempt installs conn when the attempt is still current.
func (m *Manager) finishAttempt(gen uint64, url string, conn Conn, err error) error {
	m.mu.Lock()
	defer m.unlock()

	if gen != m.gen || m.closed {
		if conn != nil {
			m.emit(func() { _ = conn.Close() })
		}
		if err == nil {
			err = errors.WrapTransient(errors.ErrConnectionFailed, "Manager", "Connect", "attempt superseded")
		}
		return &errors.ConnectionError{URL: url, Attempt: m.attempts, Err: err}
	}
	m.dialCancel = nil

	if err != nil {
		m.logger.Warn("Connection attempt failed", "url", url, "attempt", m.attempts, "error", err)
		m.recordErrorLocked("connect")
		m.setStateLocked(StateError)
		m.scheduleReconnectLocked()
		return &errors.ConnectionError{URL: url, Attempt: m.attempts, Err: err}
	}

	lc := newLiveConn(conn)
	m.live = lc
	m.attempts = 0
	m.lastActivity = time.Now()
	m.sched = newBatchScheduler(m.cfg.BatchSize, m.cfg.BatchTimeout, m.batchWindowClosed)
	m.setStateLocked(StateConnected)
	m.logger.Info("Connected", "url", url)

	m.bg.Add(3)
	go m.readLoop(lc)
	go m.writeLoop(lc)
	go m.keepalive(lc)

	m.replayLocked(lc)
	return nil
}

// detachLocked drops the live connection, if any. Unwritten application
// messages move to the outage queue and the conn is closed after unlock.
func (m *Manager) detachLocked() {
	m.gen++
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	lc := m.live
	if lc == nil {
		return
	}
	m.live = nil

	if m.sched != nil {
		for _, msg := range m.sched.takeAll() {
			m.queueLocked(msg)
		}
		m.sched = nil
	}
	for _, b := range lc.outbox {
		if b.control {
			continue
		}
		for _, msg := range b.msgs {
			m.queueLocked(msg)
		}
	}
	lc.outbox = nil
	clear(m.probes)
	lc.stop()

	m.emit(func() {
		if err := lc.conn.Close(); err != nil {
			m.logger.Debug("Error closing connection", "error", err)
		}
	})
}

// failLocked handles the loss of lc. A clean peer close ends in
// StateDisconnected; anything else ends in StateError and reconnects.
func (m *Manager) failLocked(lc *liveConn, err error) {
	if m.live != lc {
		return
	}
	m.detachLocked()

	if stderrors.Is(err, ErrPeerClosed) {
		m.logger.Info("Connection closed by peer", "url", m.url)
		m.setStateLocked(StateDisconnected)
		return
	}

	m.logger.Warn("Connection lost", "url", m.url, "error", err)
	m.setStateLocked(StateError)
	m.scheduleReconnectLocked()
}

func (m *Manager) connectionFailed(lc *liveConn, err error) {
	m.mu.Lock()
	defer m.unlock()

	if m.live == lc {
		m.recordErrorLocked("read")
	}
	m.failLocked(lc, err)
}

// scheduleReconnectLocked arms the next reconnection attempt unless one is
// pending, a dial is in flight or reconnection is suppressed. Reaching the
// attempt cap fires the terminal-failure callback once.
func (m *Manager) scheduleReconnectLocked() {
	switch {
	case m.suppressed, m.closed, m.exhausted, m.url == "":
		return
	case m.reconnectTimer != nil:
		return
	case m.state == StateConnecting, m.state == StateConnected:
		return
	}

	if m.policy.Exhausted(m.attempts) {
		m.exhausted = true
		err := &errors.ConnectionError{URL: m.url, Attempt: m.attempts, Err: errors.ErrReconnectExceeded}
		m.logger.Error("Reconnection attempts exhausted", "url", m.url, "attempts", m.attempts)
		m.recordErrorLocked("reconnect_exhausted")
		if fn := m.onTerminal; fn != nil {
			m.emit(func() { fn(err) })
		}
		return
	}

	m.attempts++
	m.stats.reconnects++
	m.prom.reconnects.Inc()

	delay := m.policy.Delay(m.attempts)
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnectTimer = time.AfterFunc(delay, func() { m.reconnectFired(seq) })
	m.logger.Info("Reconnect scheduled", "url", m.url, "attempt", m.attempts, "delay", delay)
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

func (m *Manager) reconnectFired(seq uint64) {
	m.mu.Lock()
	if seq != m.reconnectSeq || m.reconnectTimer == nil {
		m.unlock()
		return
	}
	m.reconnectTimer = nil
	if m.suppressed || m.closed || m.state == StateConnected {
		m.unlock()
		return
	}

	url := m.url
	dialer, err := m.dialerFor(url)
	if err != nil {
		m.logger.Error("Reconnect aborted, address unusable", "url", url, "error", err)
		m.recordErrorLocked("connect")
		m.setStateLocked(StateError)
		m.unlock()
		return
	}

	gen := m.beginAttemptLocked()
	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.ConnectTimeout)
	m.dialCancel = cancel
	attempt := m.attempts
	m.unlock()
	defer cancel()

	m.logger.Debug("Reconnecting", "url", url, "attempt", attempt)
	conn, err := dialer.Dial(ctx, url)
	if err := m.finishAttempt(gen, url, conn, dialError(ctx, err)); err != nil {
		m.logger.Debug("Reconnect attempt failed", "url", url, "attempt", attempt, "error", err)
	}
}

func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.prom.state.Set(float64(to))
	m.logger.Debug("Connection state changed", "from", from, "to", to)

	if fn := m.onStateChange; fn != nil {
		m.emit(func() { fn(from, to) })
	}
}

// --- outbound path ------------------------------------------------------------

// replayLocked drains the outage queue onto a fresh connection in sorted
// chunks of at most BatchSize.
func (m *Manager) replayLocked(lc *liveConn) {
	if n := m.outage.purgeExpired(time.Now()); n > 0 {
		m.expiredLocked(n)
	}

	chunks := m.outage.drainChunks(m.cfg.BatchSize)
	if len(chunks) == 0 {
		return
	}

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
		lc.enqueue(outboundBatch{msgs: chunk})
	}
	m.logger.Info("Replaying queued messages", "messages", total, "batches", len(chunks))
	m.prom.queueSize.Set(float64(m.queueSizeLocked()))
}

func (m *Manager) batchWindowClosed(s *batchScheduler, seq uint64) {
	m.mu.Lock()
	defer m.unlock()

	if m.sched != s || m.live == nil || !s.expired(seq) {
		return
	}
	if batch := s.takeAll(); len(batch) > 0 {
		m.logger.Debug("Flushing batch", "reason", flushTimeout, "size", len(batch))
		m.live.enqueue(outboundBatch{msgs: batch})
	}
}

// queueLocked parks msg in the outage queue, signalling overflow instead of
// dropping silently.
func (m *Manager) queueLocked(msg *Message) {
	if err := m.outage.push(msg); err != nil {
		m.logger.Warn("Outage queue full, message rejected",
			"type", msg.Type, "id", msg.ID, "capacity", m.cfg.MaxQueueSize)
		m.dropLocked(msg, dropOverflow)
		if fn := m.onOverflow; fn != nil {
			m.emit(func() { fn(msg) })
		}
		return
	}

	if m.outage.aboveHighWater() {
		m.logger.Warn("Outage queue above high-water mark",
			"size", m.outage.len(), "threshold", m.cfg.MessageBufferSize)
	}
	m.prom.queueSize.Set(float64(m.queueSizeLocked()))
	m.armSweepLocked()
}

func (m *Manager) armSweepLocked() {
	if m.sweepTimer != nil || m.closed || m.outage.len() == 0 {
		return
	}
	m.sweepTimer = time.AfterFunc(m.cfg.RetentionSweepInterval, m.sweep)
}

// sweep purges outage entries older than RetentionWindow.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.unlock()

	m.sweepTimer = nil
	if m.closed {
		return
	}
	if n := m.outage.purgeExpired(time.Now()); n > 0 {
		m.expiredLocked(n)
	}
	m.armSweepLocked()
}

func (m *Manager) expiredLocked(n int) {
	m.stats.dropped += int64(n)
	m.prom.messagesDropped.WithLabelValues(dropExpired).Add(float64(n))
	m.prom.queueSize.Set(float64(m.queueSizeLocked()))
	m.logger.Info("Purged expired queued messages", "count", n, "retention", m.cfg.RetentionWindow)
}

func (m *Manager) dropLocked(msg *Message, reason string) {
	m.stats.dropped++
	m.prom.messagesDropped.WithLabelValues(reason).Inc()
	if fn := m.onDrop; fn != nil {
		m.emit(func() { fn(msg, reason) })
	}
}

func (m *Manager) writeLoop(lc *liveConn) {
	defer m.bg.Done()

	for {
		select {
		case <-lc.done:
			return
		case <-lc.wake:
		}

		for {
			m.mu.Lock()
			if m.live != lc || len(lc.outbox) == 0 {
				m.unlock()
				break
			}
			b := lc.outbox[0]
			lc.outbox[0] = outboundBatch{}
			lc.outbox = lc.outbox[1:]
			m.unlock()

			if !m.writeBatch(lc, b) {
				return
			}
		}
	}
}

// writeBatch encodes and writes b. It returns false once lc is unusable.
func (m *Manager) writeBatch(lc *liveConn, b outboundBatch) bool {
	frame, err := EncodeBatch(b.msgs, m.cfg.CompressionEnabled, m.cfg.CompressionThreshold)
	if err != nil {
		m.mu.Lock()
		m.logger.Error("Dropping batch that cannot be encoded", "size", len(b.msgs), "error", err)
		m.recordErrorLocked("encode")
		if !b.control {
			for _, msg := range b.msgs {
				m.dropLocked(msg, dropEncode)
			}
		}
		m.unlock()
		return true
	}

	if err := lc.conn.WriteFrame(frame); err != nil {
		m.writeFailed(lc, b, err)
		return false
	}

	m.mu.Lock()
	defer m.unlock()

	if b.control {
		return true
	}
	m.stats.recordBatch(len(b.msgs))
	m.prom.messagesSent.Add(float64(len(b.msgs)))
	m.prom.batchSize.Observe(float64(len(b.msgs)))
	m.prom.queueSize.Set(float64(m.queueSizeLocked()))
	if m.live == lc {
		m.lastActivity = time.Now()
	}
	return true
}

// writeFailed re-queues the batch with one more retry each, dropping those
// past MaxRetries, then treats the connection as lost.
func (m *Manager) writeFailed(lc *liveConn, b outboundBatch, err error) {
	m.mu.Lock()
	defer m.unlock()

	serr := &errors.SendError{BatchSize: len(b.msgs), Err: err}
	m.logger.Warn("Batch write failed", "error", serr)
	m.recordErrorLocked("send")

	if !b.control {
		for _, msg := range b.msgs {
			msg.Retries++
			if msg.Retries > m.cfg.MaxRetries {
				m.logger.Warn("Dropping message after max retries",
					"type", msg.Type, "id", msg.ID, "retries", msg.Retries)
				m.dropLocked(msg, dropRetries)
				continue
			}
			m.queueLocked(msg)
		}
	}

	m.failLocked(lc, err)
}

// --- inbound path -------------------------------------------------------------

func (m *Manager) readLoop(lc *liveConn) {
	defer m.bg.Done()

	for {
		frame, err := lc.conn.ReadFrame()
		if err != nil {
			m.connectionFailed(lc, err)
			return
		}

		msgs, err := DecodeFrame(frame)
		if err != nil {
			m.logger.Warn("Discarding undecodable frame", "kind", frame.Kind, "bytes", len(frame.Data), "error", err)
		}

		msgs, ok := m.observeInbound(lc, msgs, err)
		if !ok {
			return
		}
		if len(msgs) > 0 {
			m.dispatcher.dispatch(m.baseCtx, msgs)
		}
	}
}

// observeInbound records activity for lc and consumes probe responses. It
// returns false once lc is no longer live.
func (m *Manager) observeInbound(lc *liveConn, msgs []*Message, decodeErr error) ([]*Message, bool) {
	m.mu.Lock()
	defer m.unlock()

	if m.live != lc {
		return nil, false
	}

	now := time.Now()
	m.lastActivity = now
	if decodeErr != nil {
		m.recordErrorLocked("decode")
		return nil, true
	}

	out := msgs[:0]
	for _, msg := range msgs {
		if msg.Type == ProbeResponseType {
			m.completeProbeLocked(msg, now)
			continue
		}
		if m.duplicateLocked(msg) {
			continue
		}
		out = append(out, msg)
	}

	m.stats.received += int64(len(out))
	m.prom.messagesReceived.Add(float64(len(out)))
	return out, true
}

// duplicateLocked reports whether msg.ID was already delivered inside the
// dedup window. Messages without an id always pass.
func (m *Manager) duplicateLocked(msg *Message) bool {
	if m.seen == nil || msg.ID == "" {
		return false
	}
	if added, _ := m.seen.SetIfAbsent(msg.ID, struct{}{}); added {
		return false
	}
	m.stats.duplicates++
	m.logger.Debug("Dropping duplicate message", "type", msg.Type, "id", msg.ID)
	return true
}

func (m *Manager) handlerFailed(err *errors.HandlerError) {
	m.mu.Lock()
	m.stats.handlerErrors++
	m.prom.handlerErrors.Inc()
	m.recordErrorLocked("handler")
	fn := m.onHandlerError
	m.unlock()

	if fn != nil {
		fn(err)
	}
}

// --- helpers ------------------------------------------------------------------

func (m *Manager) recordErrorLocked(kind string) {
	m.errorCount++
	m.prom.errorsTotal.WithLabelValues(kind).Inc()
}

func (m *Manager) queueSizeLocked() int {
	n := m.outage.len()
	if m.sched != nil {
		n += m.sched.len()
	}
	if m.live != nil {
		for _, b := range m.live.outbox {
			if !b.control {
				n += len(b.msgs)
			}
		}
	}
	return n
}

// emit defers fn until the lock is released.
func (m *Manager) emit(fn func()) {
	m.events = append(m.events, fn)
}

// unlock releases mu and runs the callbacks collected while it was held.
func (m *Manager) unlock() {
	events := m.events
	m.events = nil
	m.mu.Unlock()

	for _, fn := range events {
		fn()
	}
}
