package pool

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/utkarsh5026/elasticpool/internal/algorithms"
)

// RejectPolicy decides what happens to a task that arrives while the queue
// is full.
type RejectPolicy int

const (
	// RejectAbort resolves the task's future with ErrRejectedExecution.
	RejectAbort RejectPolicy = iota
	// RejectDiscard cancels the task's future.
	RejectDiscard
	// RejectDiscardOldest cancels the oldest queued task and enqueues the new one.
	RejectDiscardOldest
	// RejectCallerRuns runs the task on the submitting goroutine before Submit returns.
	RejectCallerRuns
)

func (p RejectPolicy) String() string {
	switch p {
	case RejectAbort:
		return "abort"
	case RejectDiscard:
		return "discard"
	case RejectDiscardOldest:
		return "discard_oldest"
	case RejectCallerRuns:
		return "caller_runs"
	default:
		return fmt.Sprintf("RejectPolicy(%d)", int(p))
	}
}

// ParseRejectPolicy maps a policy name such as "discard_oldest" to its value.
func ParseRejectPolicy(name string) (RejectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "abort":
		return RejectAbort, nil
	case "discard":
		return RejectDiscard, nil
	case "discard_oldest", "discard-oldest":
		return RejectDiscardOldest, nil
	case "caller_runs", "caller-runs":
		return RejectCallerRuns, nil
	default:
		return RejectAbort, &ConfigError{Field: "RejectPolicy", Value: name, Reason: "unknown reject policy"}
	}
}

// BackoffKind selects the delay algorithm used between retries.
type BackoffKind = algorithms.Kind

const (
	BackoffExponential  = algorithms.Exponential
	BackoffJittered     = algorithms.Jittered
	BackoffDecorrelated = algorithms.Decorrelated
)

// Config holds every pool setting. Build one with DefaultConfig and
// options; New validates it and keeps a private copy.
type Config struct {
	// Name prefixes worker and loop names in logs.
	Name string

	MinWorkers    int
	MaxWorkers    int
	QueueCapacity int // 0 = unbounded
	KeepAlive     time.Duration
	RejectPolicy  RejectPolicy

	// TaskTimeout bounds each task's execution. 0 disables it.
	TaskTimeout time.Duration

	ShutdownWait    bool
	ShutdownTimeout time.Duration // 0 = wait without limit

	// WorkerInit runs once on every worker before it takes any task.
	WorkerInit func() error

	MetricsEnabled bool

	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Backoff       BackoffKind
	JitterFactor  float64

	RateLimit float64 // tasks per second, 0 = unlimited
	RateBurst int

	CPUAffinity bool

	BeforeTaskStart func(TaskInfo)
	OnTaskEnd       func(TaskInfo, error)
	OnRetry         func(info TaskInfo, attempt int, err error)

	Logger *zap.Logger
}

// DefaultConfig returns the settings used when no option overrides them.
func DefaultConfig() Config {
	return Config{
		Name:          "pool",
		MinWorkers:    1,
		MaxWorkers:    10,
		QueueCapacity: 0,
		KeepAlive:     60 * time.Second,
		RejectPolicy:  RejectAbort,
		ShutdownWait:  true,
		MaxAttempts:   1,
		MaxRetryDelay: 30 * time.Second,
		Backoff:       BackoffExponential,
		JitterFactor:  0.1,
	}
}

// Validate reports every invalid field at once. Each problem is a
// *ConfigError; use multierr.Errors to list them.
func (c Config) Validate() error {
	var err error
	bad := func(field string, value any, reason string) {
		err = multierr.Append(err, &ConfigError{Field: field, Value: value, Reason: reason})
	}

	if c.MinWorkers < 1 {
		bad("MinWorkers", c.MinWorkers, "must be at least 1")
	}
	if c.MaxWorkers < c.MinWorkers {
		bad("MaxWorkers", c.MaxWorkers, fmt.Sprintf("must be >= MinWorkers (%d)", c.MinWorkers))
	}
	if c.QueueCapacity < 0 {
		bad("QueueCapacity", c.QueueCapacity, "must not be negative")
	}
	if c.KeepAlive < 0 {
		bad("KeepAlive", c.KeepAlive, "must not be negative")
	}
	if c.RejectPolicy < RejectAbort || c.RejectPolicy > RejectCallerRuns {
		bad("RejectPolicy", c.RejectPolicy, "unknown reject policy")
	}
	if c.TaskTimeout < 0 {
		bad("TaskTimeout", c.TaskTimeout, "must not be negative")
	}
	if c.ShutdownTimeout < 0 {
		bad("ShutdownTimeout", c.ShutdownTimeout, "must not be negative")
	}
	if c.MaxAttempts < 1 {
		bad("MaxAttempts", c.MaxAttempts, "must be at least 1")
	}
	if c.RetryDelay < 0 {
		bad("RetryDelay", c.RetryDelay, "must not be negative")
	}
	if c.MaxRetryDelay < 0 {
		bad("MaxRetryDelay", c.MaxRetryDelay, "must not be negative")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		bad("JitterFactor", c.JitterFactor, "must be within [0, 1]")
	}
	if c.RateLimit < 0 {
		bad("RateLimit", c.RateLimit, "must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		bad("RateBurst", c.RateBurst, "must be at least 1 when a rate limit is set")
	}
	return err
}

func (c Config) backoffPolicy() algorithms.Policy {
	return algorithms.Policy{
		Kind:    c.Backoff,
		Initial: c.RetryDelay,
		Max:     c.MaxRetryDelay,
		Jitter:  c.JitterFactor,
	}
}
