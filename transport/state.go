package transport

import "time"

// State is the connection state machine value.
type State int

// Connection states. The zero value is StateDisconnected.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionState is a read-only snapshot of the manager's connection.
type ConnectionState struct {
	State             State         `json:"state"`
	URL               string        `json:"url,omitempty"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	LastMessageTime   time.Time     `json:"last_message_time"`
	Latency           time.Duration `json:"latency"`
	Exhausted         bool          `json:"exhausted"`
}

// MarshalText lets State render as its name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
