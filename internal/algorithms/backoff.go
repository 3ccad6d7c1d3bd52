// Package algorithms holds the retry delay strategies used by the pool.
package algorithms

import (
	"math/rand/v2"
	"time"
)

// maxShift keeps 1<<retry from overflowing int64.
const maxShift = 62

// Kind selects a backoff algorithm.
type Kind int

const (
	// Exponential doubles the delay on every retry.
	Exponential Kind = iota
	// Jittered is Exponential scaled by a random factor in [1-j, 1+j].
	Jittered
	// Decorrelated picks each delay in [initial, 3*previous], capped at max.
	Decorrelated
)

func (k Kind) String() string {
	switch k {
	case Exponential:
		return "exponential"
	case Jittered:
		return "jittered"
	case Decorrelated:
		return "decorrelated"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "", "exponential":
		return Exponential, true
	case "jittered", "jitter":
		return Jittered, true
	case "decorrelated":
		return Decorrelated, true
	default:
		return Exponential, false
	}
}

// Strategy computes the wait before a retry. retry is 0 for the first retry
// after the initial failure. A Strategy belongs to one task execution and
// is not safe for concurrent use.
type Strategy interface {
	Next(retry int, lastErr error) time.Duration
}

// Policy describes how Strategy values are built.
type Policy struct {
	Kind    Kind
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// New returns a fresh strategy for one task execution. A zero Max means no
// cap beyond overflow protection.
func (p Policy) New() Strategy {
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<63 - 1)
	}
	initial := max(p.Initial, 0)

	switch p.Kind {
	case Jittered:
		return &jittered{initial: initial, max: maxDelay, factor: min(max(p.Jitter, 0), 1)}
	case Decorrelated:
		return &decorrelated{initial: initial, max: maxDelay, prev: initial}
	default:
		return &exponential{initial: initial, max: maxDelay}
	}
}

type exponential struct {
	initial, max time.Duration
}

func (e *exponential) Next(retry int, _ error) time.Duration {
	return doubling(retry, e.initial, e.max)
}

type jittered struct {
	initial, max time.Duration
	factor       float64
}

func (j *jittered) Next(retry int, _ error) time.Duration {
	if retry < 0 {
		return 0
	}
	base := doubling(retry, j.initial, j.max)
	scale := 1 + (rand.Float64()*2-1)*j.factor // #nosec G404 -- jitter does not need crypto rand
	d := time.Duration(float64(base) * scale)
	return min(max(d, 0), j.max)
}

type decorrelated struct {
	initial, max time.Duration
	prev         time.Duration
}

func (d *decorrelated) Next(retry int, _ error) time.Duration {
	if retry <= 0 {
		d.prev = d.initial
		return d.initial
	}

	upper := d.max
	if d.prev < d.max/3 {
		upper = d.prev * 3
	}
	span := upper - d.initial
	if span <= 0 {
		d.prev = d.initial
		return d.initial
	}

	d.prev = d.initial + time.Duration(rand.Int64N(int64(span))) // #nosec G404
	return d.prev
}

// doubling returns initial*2^retry clamped to [0, maxDelay].
func doubling(retry int, initial, maxDelay time.Duration) time.Duration {
	switch {
	case retry < 0:
		return 0
	case retry >= maxShift:
		return maxDelay
	}

	d := initial * time.Duration(int64(1)<<uint(retry))
	if d < 0 || d > maxDelay || (initial > 0 && d/initial != time.Duration(int64(1)<<uint(retry))) {
		return maxDelay
	}
	return d
}
