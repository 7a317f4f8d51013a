// Package buffer provides a generic, thread-safe, bounded buffer that hands
// items back in a caller-defined order.
package buffer

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropNewest rejects the incoming item with errors.ErrQueueFull.
	DropNewest OverflowPolicy = iota

	// DropOldest evicts the earliest written item to make room.
	DropOldest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "DropNewest"
	case DropOldest:
		return "DropOldest"
	default:
		return "Unknown"
	}
}

// DropCallback is called when an item is dropped due to overflow policy.
// It receives the item that was dropped.
type DropCallback[T any] func(item T)

// LessFunc reports whether a must be handed out before b.
type LessFunc[T any] func(a, b T) bool
