package pool

import (
	"errors"
	"fmt"

	"github.com/utkarsh5026/elasticpool/internal/bridge"
	"github.com/utkarsh5026/elasticpool/internal/types"
)

var (
	// ErrRejectedExecution resolves a task refused by RejectAbort, or by
	// RejectDiscardOldest when nothing could be evicted.
	ErrRejectedExecution = errors.New("task queue is full")

	// ErrPoolShutdown is returned by Submit after Shutdown, and resolves
	// tasks that were still queued when the pool began shutting down.
	ErrPoolShutdown = errors.New("pool is shut down")

	// ErrTaskTimeout resolves a task that exceeded its timeout.
	ErrTaskTimeout = errors.New("task timeout")

	// ErrBridgeUnavailable resolves a coroutine task when the event loop
	// is not running.
	ErrBridgeUnavailable = bridge.ErrUnavailable

	// ErrTaskCancelled resolves a task cancelled before it ran.
	ErrTaskCancelled = types.ErrCancelled

	// ErrTaskPanicked wraps a panic raised by a task body.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrShutdownTimeout is returned when workers outlive the shutdown timeout.
	ErrShutdownTimeout = errors.New("error in shutting down: timeout reached")

	// ErrInvalidConfig is the sentinel every *ConfigError unwraps to.
	ErrInvalidConfig = errors.New("invalid pool config")

	// ErrNilTask is returned by Submit and SubmitCoroutine for a nil task.
	ErrNilTask = errors.New("task function is nil")
)

// ConfigError describes one invalid configuration field.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
