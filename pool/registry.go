package pool

import (
	"fmt"
	"sync"
)

type workerState int

const (
	workerIdle workerState = iota
	workerBusy
	workerRetiring
)

type worker struct {
	id    int
	name  string
	state workerState
}

// registry owns the worker set. Every count changes under mu, so growth and
// retirement decisions see a consistent view.
type registry struct {
	mu      sync.Mutex
	prefix  string
	min     int
	max     int
	workers map[int]*worker
	seq     int
	active  int // live and not retiring
	idle    int
	busy    int
	closed  bool
	wg      sync.WaitGroup
	launch  func(*worker)
}

func newRegistry(prefix string, minWorkers, maxWorkers int, launch func(*worker)) *registry {
	return &registry{
		prefix:  prefix,
		min:     minWorkers,
		max:     maxWorkers,
		workers: make(map[int]*worker, maxWorkers),
		launch:  launch,
	}
}

// start launches the initial minimum set.
func (r *registry) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.workers) < r.min {
		r.addLocked()
	}
}

// maybeGrow adds one worker when every idle worker already has queued work
// waiting for it and the pool is below its maximum.
func (r *registry) maybeGrow(queued int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || len(r.workers) >= r.max || queued <= r.idle {
		return false
	}
	r.addLocked()
	return true
}

func (r *registry) addLocked() {
	r.seq++
	w := &worker{
		id:    r.seq,
		name:  fmt.Sprintf("%s-%d", r.prefix, r.seq),
		state: workerIdle,
	}
	r.workers[w.id] = w
	r.active++
	r.idle++
	r.wg.Add(1)
	r.launch(w)
}

func (r *registry) setBusy(w *worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.state == workerIdle {
		w.state = workerBusy
		r.idle--
		r.busy++
	}
}

func (r *registry) setIdle(w *worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.state == workerBusy {
		w.state = workerIdle
		r.busy--
		r.idle++
	}
}

// aboveMin reports whether idle workers should use the keep-alive timeout.
func (r *registry) aboveMin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active > r.min
}

// tryRetire marks w as retiring if the pool can shrink without dropping
// below its minimum.
func (r *registry) tryRetire(w *worker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.active <= r.min || w.state != workerIdle {
		return false
	}
	w.state = workerRetiring
	r.idle--
	r.active--
	return true
}

// remove drops w from the set once its goroutine is about to return.
func (r *registry) remove(w *worker) {
	r.mu.Lock()
	switch w.state {
	case workerIdle:
		r.idle--
		r.active--
	case workerBusy:
		r.busy--
		r.active--
	}
	delete(r.workers, w.id)
	r.mu.Unlock()

	r.wg.Done()
}

// close forbids further growth. Workers already running are unaffected.
func (r *registry) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *registry) wait() {
	r.wg.Wait()
}

type workerCounts struct {
	active, total, idle, busy int
}

func (r *registry) counts() workerCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return workerCounts{
		active: r.active,
		total:  len(r.workers),
		idle:   r.idle,
		busy:   r.busy,
	}
}
