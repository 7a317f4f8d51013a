package transport

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/timestamp"
)

// Priority orders messages inside a batch and decides how handlers run.
type Priority int

// Priorities, lowest first.
const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the wire name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority maps a wire name to a Priority. Matching is case-insensitive
// and an empty name is low, the same as an absent priority field.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityLow, errors.WrapInvalid(
			fmt.Errorf("unknown priority %q", s), "transport", "ParsePriority", "parse priority")
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	if p < PriorityLow || p > PriorityCritical {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Message is the unit of data moved over the transport.
//
// Handlers receive a shared *Message and must treat it as read-only.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Priority  Priority        `json:"priority"`
	Retries   int             `json:"retries"`
}

// NewMessage builds a message stamped with a fresh id and the current time.
func NewMessage(msgType string, payload any, priority Priority) (*Message, error) {
	return newMessage(time.Now(), msgType, payload, priority)
}

func newMessage(now time.Time, msgType string, payload any, priority Priority) (*Message, error) {
	if msgType == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "transport", "NewMessage", "message type is empty")
	}

	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.WrapInvalid(err, "transport", "NewMessage", "marshal payload")
		}
		raw = data
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: timestamp.ToUnixMs(now),
		Priority:  priority,
	}, nil
}

// Time returns the creation time.
func (m *Message) Time() time.Time {
	return timestamp.FromUnixMs(m.Timestamp)
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Message", "Decode", "empty payload")
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return errors.WrapInvalid(err, "Message", "Decode", "unmarshal payload")
	}
	return nil
}

// Before reports whether a goes on the wire (or to handlers) before b:
// higher priority first, then older first.
func Before(a, b *Message) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Timestamp < b.Timestamp
}

// SortMessages orders msgs in place by Before. Messages that tie keep their
// relative order.
func SortMessages(msgs []*Message) {
	slices.SortStableFunc(msgs, func(a, b *Message) int {
		switch {
		case Before(a, b):
			return -1
		case Before(b, a):
			return 1
		default:
			return 0
		}
	})
}
