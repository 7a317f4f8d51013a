package worker

import (
	"fmt"

	"github.com/c360/streamsync/errors"
)

// Sentinel errors for worker pool operations
var (
	// ErrPoolNotStarted indicates the pool hasn't been started yet
	ErrPoolNotStarted = fmt.Errorf("worker pool: %w", errors.ErrNotStarted)

	// ErrPoolStopped indicates the pool has been stopped
	ErrPoolStopped = fmt.Errorf("worker pool: %w", errors.ErrAlreadyStopped)

	// ErrPoolAlreadyStarted indicates Start() was called on an already-started pool
	ErrPoolAlreadyStarted = fmt.Errorf("worker pool: %w", errors.ErrAlreadyStarted)

	// ErrQueueFull indicates the work queue is at capacity
	ErrQueueFull = fmt.Errorf("worker pool: %w", errors.ErrQueueFull)

	// ErrNilProcessor indicates a nil processor function was provided
	ErrNilProcessor = fmt.Errorf("worker pool: processor function cannot be nil: %w", errors.ErrInvalidConfig)

	// ErrStopTimeout indicates the pool didn't stop within the timeout
	ErrStopTimeout = fmt.Errorf("worker pool: timeout waiting for workers to stop: %w", errors.ErrShuttingDown)
)
