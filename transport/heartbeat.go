package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/timestamp"
)

// Control message types exchanged with the peer.
const (
	HeartbeatType     = "ping"
	ProbeType         = "latency_probe"
	ProbeResponseType = "latency_probe_response"
)

// ProbePayload is carried by latency probes and echoed back in responses.
type ProbePayload struct {
	ProbeID string `json:"probe_id"`
	SentAt  int64  `json:"sent_at"`
}

// keepalive drives heartbeats, stale detection and latency probes for one
// connection. It exits when the connection is detached.
func (m *Manager) keepalive(lc *liveConn) {
	defer m.bg.Done()

	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	stale := time.NewTicker(m.cfg.StaleCheckInterval)
	defer stale.Stop()
	probe := time.NewTicker(m.cfg.LatencyProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-lc.done:
			return
		case <-heartbeat.C:
			m.sendHeartbeat(lc)
		case <-stale.C:
			m.checkStale(lc, time.Now())
		case <-probe.C:
			m.sendProbe(lc, time.Now())
		}
	}
}

func (m *Manager) sendHeartbeat(lc *liveConn) {
	msg, _ := NewMessage(HeartbeatType, nil, PriorityLow)

	m.mu.Lock()
	defer m.unlock()

	if m.live != lc {
		return
	}
	lc.enqueue(outboundBatch{msgs: []*Message{msg}, control: true})
}

// checkStale forces the connection down when nothing was read and no
// application batch was written within StaleTimeout.
func (m *Manager) checkStale(lc *liveConn, now time.Time) {
	m.mu.Lock()
	defer m.unlock()

	if m.live != lc {
		return
	}

	idle := now.Sub(m.lastActivity)
	if idle <= m.cfg.StaleTimeout {
		return
	}

	m.logger.Warn("Connection stale, forcing reconnect",
		"url", m.url, "idle", idle, "threshold", m.cfg.StaleTimeout)
	m.recordErrorLocked("stale")
	m.failLocked(lc, errors.WrapTransient(errors.ErrConnectionStale, "Manager", "checkStale",
		"no traffic observed"))
}

func (m *Manager) sendProbe(lc *liveConn, now time.Time) {
	id := uuid.NewString()
	msg, err := newMessage(now, ProbeType, ProbePayload{ProbeID: id, SentAt: timestamp.ToUnixMs(now)}, PriorityHigh)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.unlock()

	if m.live != lc {
		return
	}
	m.expireProbesLocked(now)
	m.probes[id] = now
	lc.enqueue(outboundBatch{msgs: []*Message{msg}, control: true})
}

// expireProbesLocked abandons probes older than LatencyProbeTimeout.
func (m *Manager) expireProbesLocked(now time.Time) {
	for id, sent := range m.probes {
		if now.Sub(sent) > m.cfg.LatencyProbeTimeout {
			delete(m.probes, id)
		}
	}
}

// completeProbeLocked matches a probe response and updates the latency gauge.
// Late or unknown responses are ignored.
func (m *Manager) completeProbeLocked(msg *Message, now time.Time) {
	var p ProbePayload
	if err := msg.Decode(&p); err != nil {
		m.logger.Debug("Ignoring malformed probe response", "id", msg.ID, "error", err)
		return
	}

	sent, ok := m.probes[p.ProbeID]
	if !ok {
		return
	}
	delete(m.probes, p.ProbeID)

	rtt := now.Sub(sent)
	if rtt > m.cfg.LatencyProbeTimeout {
		return
	}

	m.stats.observeLatency(rtt)
	m.prom.latency.Set(m.stats.latency.Seconds())
}
