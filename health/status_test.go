package health

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{"healthy", NewHealthy("transport", "connected"), true, false, false},
		{"degraded", NewDegraded("transport", "reconnecting"), false, true, false},
		{"unhealthy", NewUnhealthy("transport", "gave up"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "transport", tt.status.Component)
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.Equal(t, tt.healthy, tt.status.IsHealthy())
			assert.Equal(t, tt.degraded, tt.status.IsDegraded())
			assert.Equal(t, tt.unhealthy, tt.status.IsUnhealthy())
			assert.WithinDuration(t, time.Now(), tt.status.Timestamp, time.Second)
		})
	}
}

func TestFromError(t *testing.T) {
	ok := FromError("transport", nil)
	assert.True(t, ok.IsHealthy())
	assert.Equal(t, "OK", ok.Message)

	bad := FromError("transport", fmt.Errorf("dial ws://10.0.0.7:9000/stream: refused"))
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial [URL] refused", bad.Message)
}

func TestDegrade(t *testing.T) {
	s := Degrade("resilience", "circuit open for fetch at 10.1.2.3")
	assert.True(t, s.IsDegraded())
	assert.Equal(t, "circuit open for fetch at [IP]", s.Message)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		subs   []Status
		expect string
	}{
		{"empty", nil, "healthy"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("system", tt.subs)
			assert.Equal(t, tt.expect, agg.Status)
			assert.Equal(t, "system", agg.Component)
			if len(tt.subs) > 0 {
				assert.Len(t, agg.SubStatuses, len(tt.subs))
			}
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	agg := Aggregate("system", subs)

	subs[0].Status = "unhealthy"
	assert.Equal(t, "healthy", agg.SubStatuses[0].Status)
}

func TestStatus_WithMetricsJSON(t *testing.T) {
	s := NewHealthy("transport", "connected").WithMetrics(&Metrics{
		Uptime:            time.Minute,
		MessagesProcessed: 42,
		QueueDepth:        3,
	})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "healthy", decoded["status"])

	metrics, ok := decoded["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42.0, metrics["messages_processed"])
	assert.Equal(t, 3.0, metrics["queue_depth"])
	assert.NotContains(t, decoded, "sub_statuses")
}
