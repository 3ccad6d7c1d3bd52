// Package prometheus exports pool metrics snapshots as Prometheus gauges.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/utkarsh5026/elasticpool/pool"
)

// MetricsSource provides pool metrics snapshots. *pool.Pool implements it.
type MetricsSource interface {
	Metrics() (pool.Metrics, bool)
	State() pool.State
}

// Exporter periodically copies the snapshots of registered pools into
// Prometheus gauges labelled by pool name.
type Exporter struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]MetricsSource

	tasks   *prom.GaugeVec
	workers *prom.GaugeVec
	queued  *prom.GaugeVec
	running *prom.GaugeVec

	stateMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewExporter creates an exporter and registers its collectors on reg, or
// on the default registerer when reg is nil.
func NewExporter(namespace string, reg prom.Registerer, interval time.Duration) (*Exporter, error) {
	if namespace == "" {
		namespace = "elasticpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	tasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks",
		Help:      "Cumulative task outcomes per pool.",
	}, []string{"pool", "outcome"})
	workers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Workers per pool by state.",
	}, []string{"pool", "state"})
	queued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_size",
		Help:      "Tasks waiting in the pool queue.",
	}, []string{"pool"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "running",
		Help:      "Pool lifecycle state (1=running, 0=shutting down or stopped).",
	}, []string{"pool"})

	var err error
	if tasks, err = registerCollector(reg, tasks); err != nil {
		return nil, err
	}
	if workers, err = registerCollector(reg, workers); err != nil {
		return nil, err
	}
	if queued, err = registerCollector(reg, queued); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}

	return &Exporter{
		interval: interval,
		pools:    make(map[string]MetricsSource),
		tasks:    tasks,
		workers:  workers,
		queued:   queued,
		running:  running,
	}, nil
}

// AddPool adds or replaces a pool by name.
func (e *Exporter) AddPool(name string, src MetricsSource) {
	if e == nil || src == nil {
		return
	}
	if name == "" {
		name = "pool"
	}
	e.poolsMu.Lock()
	e.pools[name] = src
	e.poolsMu.Unlock()
}

// RemovePool stops exporting a pool and drops its series.
func (e *Exporter) RemovePool(name string) {
	if e == nil {
		return
	}
	e.poolsMu.Lock()
	delete(e.pools, name)
	e.poolsMu.Unlock()

	labels := prom.Labels{"pool": name}
	e.tasks.DeletePartialMatch(labels)
	e.workers.DeletePartialMatch(labels)
	e.queued.DeletePartialMatch(labels)
	e.running.DeletePartialMatch(labels)
}

// Start begins periodic collection; repeated calls are no-ops.
func (e *Exporter) Start(ctx context.Context) {
	if e == nil {
		return
	}

	e.stateMu.Lock()
	if e.started {
		e.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.started = true
	e.stateMu.Unlock()

	go e.loop(pollCtx, done)
}

// Stop ends periodic collection and waits for the collector goroutine.
func (e *Exporter) Stop() {
	if e == nil {
		return
	}

	e.stateMu.Lock()
	if !e.started {
		e.stateMu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.started = false
	e.cancel = nil
	e.done = nil
	e.stateMu.Unlock()

	cancel()
	<-done
}

func (e *Exporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Collect()
		}
	}
}

// Collect copies one snapshot of every registered pool. Pools built without
// metrics only report their lifecycle state.
func (e *Exporter) Collect() {
	e.poolsMu.RLock()
	defer e.poolsMu.RUnlock()

	for name, src := range e.pools {
		if src.State() == pool.StateRunning {
			e.running.WithLabelValues(name).Set(1)
		} else {
			e.running.WithLabelValues(name).Set(0)
		}

		m, ok := src.Metrics()
		if !ok {
			continue
		}
		e.tasks.WithLabelValues(name, "completed").Set(float64(m.CompletedTasks))
		e.tasks.WithLabelValues(name, "failed").Set(float64(m.FailedTasks))
		e.tasks.WithLabelValues(name, "rejected").Set(float64(m.RejectedTasks))
		e.tasks.WithLabelValues(name, "timed_out").Set(float64(m.TimedOutTasks))
		e.tasks.WithLabelValues(name, "cancelled").Set(float64(m.CancelledTasks))

		e.workers.WithLabelValues(name, "active").Set(float64(m.ActiveWorkers))
		e.workers.WithLabelValues(name, "total").Set(float64(m.TotalWorkers))
		e.workers.WithLabelValues(name, "busy").Set(float64(m.BusyWorkers))
		e.workers.WithLabelValues(name, "idle").Set(float64(m.IdleWorkers))

		e.queued.WithLabelValues(name).Set(float64(m.QueueSize))
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegistered prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		existing, ok := alreadyRegistered.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}
	return collector, err
}
