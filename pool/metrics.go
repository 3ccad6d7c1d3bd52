package pool

import "sync/atomic"

// Metrics is a point-in-time snapshot of pool activity.
type Metrics struct {
	CompletedTasks int64 // resolved with a value
	FailedTasks    int64 // resolved with an error, timeouts and shutdown drops included
	RejectedTasks  int64 // reject policy invocations, CallerRuns included
	TimedOutTasks  int64
	CancelledTasks int64

	ActiveWorkers int // live workers that are not retiring
	TotalWorkers  int // every worker goroutine still registered
	BusyWorkers   int
	IdleWorkers   int
	QueueSize     int
	QueueCapacity int // 0 = unbounded
}

// counters is nil when metrics are disabled; every method is nil-safe.
type counters struct {
	completedN atomic.Int64
	failedN    atomic.Int64
	rejectedN  atomic.Int64
	timedOutN  atomic.Int64
	cancelledN atomic.Int64
}

func (c *counters) completed() {
	if c != nil {
		c.completedN.Add(1)
	}
}

func (c *counters) failed() {
	if c != nil {
		c.failedN.Add(1)
	}
}

func (c *counters) rejected() {
	if c != nil {
		c.rejectedN.Add(1)
	}
}

func (c *counters) timedOut() {
	if c != nil {
		c.timedOutN.Add(1)
	}
}

func (c *counters) cancelled() {
	if c != nil {
		c.cancelledN.Add(1)
	}
}

// Metrics returns a snapshot, or false if the pool was built without
// WithMetrics(true).
func (p *Pool) Metrics() (Metrics, bool) {
	if p.metrics == nil {
		return Metrics{}, false
	}

	wc := p.reg.counts()
	return Metrics{
		CompletedTasks: p.metrics.completedN.Load(),
		FailedTasks:    p.metrics.failedN.Load(),
		RejectedTasks:  p.metrics.rejectedN.Load(),
		TimedOutTasks:  p.metrics.timedOutN.Load(),
		CancelledTasks: p.metrics.cancelledN.Load(),
		ActiveWorkers:  wc.active,
		TotalWorkers:   wc.total,
		BusyWorkers:    wc.busy,
		IdleWorkers:    wc.idle,
		QueueSize:      p.queue.Len(),
		QueueCapacity:  p.queue.Cap(),
	}, true
}
