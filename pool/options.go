package pool

import (
	"time"

	"go.uber.org/zap"
)

// Option is a functional option for configuring the pool.
// Options only record values; New validates the final Config.
type Option func(*Config)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithName sets the prefix used for worker and loop names.
func WithName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Name = name
		}
	}
}

// WithMinWorkers sets how many workers are kept alive while idle.
func WithMinWorkers(n int) Option {
	return func(c *Config) {
		c.MinWorkers = n
	}
}

// WithMaxWorkers sets the upper bound on concurrent workers.
func WithMaxWorkers(n int) Option {
	return func(c *Config) {
		c.MaxWorkers = n
	}
}

// WithWorkers sets both bounds, giving a fixed-size pool.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.MinWorkers = n
		c.MaxWorkers = n
	}
}

// WithQueueCapacity bounds the task queue. 0 means unbounded.
func WithQueueCapacity(n int) Option {
	return func(c *Config) {
		c.QueueCapacity = n
	}
}

// WithKeepAlive sets how long a worker above the minimum may stay idle
// before it retires.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) {
		c.KeepAlive = d
	}
}

// WithRejectPolicy sets what happens when the queue is full.
func WithRejectPolicy(p RejectPolicy) Option {
	return func(c *Config) {
		c.RejectPolicy = p
	}
}

// WithTaskTimeout bounds the execution time of every task.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.TaskTimeout = d
	}
}

// WithShutdownWait sets the wait flag Close uses.
func WithShutdownWait(wait bool) Option {
	return func(c *Config) {
		c.ShutdownWait = wait
	}
}

// WithShutdownTimeout sets the default bound on how long Shutdown waits.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithWorkerInit registers a hook run once on each worker as it starts.
// Errors and panics from the hook are logged; the worker still serves tasks.
func WithWorkerInit(fn func() error) Option {
	return func(c *Config) {
		c.WorkerInit = fn
	}
}

// WithMetrics enables counters and Pool.Metrics.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.MetricsEnabled = enabled
	}
}

// WithRetryPolicy retries failing plain tasks. maxAttempts counts the first
// run; initialDelay is the wait before the first retry. Coroutine tasks are
// never retried.
//
// Example:
//
//	WithRetryPolicy(3, 100*time.Millisecond) // waits 100ms, then 200ms
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Config) {
		c.MaxAttempts = maxAttempts
		c.RetryDelay = initialDelay
	}
}

// WithBackoff selects the retry delay algorithm. maxDelay caps every delay
// and jitter is only used by BackoffJittered.
func WithBackoff(kind BackoffKind, maxDelay time.Duration, jitter float64) Option {
	return func(c *Config) {
		c.Backoff = kind
		c.MaxRetryDelay = maxDelay
		c.JitterFactor = jitter
	}
}

// WithRateLimit caps how many tasks start per second across all workers.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 tasks/sec with bursts of 5
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = tasksPerSecond
		c.RateBurst = burst
	}
}

// WithCPUAffinity locks every worker to its own OS thread and pins that
// thread to a core where the platform allows it.
func WithCPUAffinity(enabled bool) Option {
	return func(c *Config) {
		c.CPUAffinity = enabled
	}
}

// WithBeforeTaskStart registers a hook called on the executing goroutine
// right before a task body runs.
func WithBeforeTaskStart(fn func(TaskInfo)) Option {
	return func(c *Config) {
		c.BeforeTaskStart = fn
	}
}

// WithOnTaskEnd registers a hook called after a task's future is resolved.
func WithOnTaskEnd(fn func(TaskInfo, error)) Option {
	return func(c *Config) {
		c.OnTaskEnd = fn
	}
}

// WithOnRetry registers a hook called before each retry of a failed task.
func WithOnRetry(fn func(info TaskInfo, attempt int, err error)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger, or a
// development logger in builds tagged debug.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
