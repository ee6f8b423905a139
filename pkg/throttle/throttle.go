// Package throttle turns a high-frequency stream of notifications into at most
// one callback invocation per fixed interval.
//
// The first call in a quiet period arms a timer; every call that arrives while
// the timer is armed is dropped. When the timer fires the callback runs once
// and the throttle becomes ready to arm again. Nothing is queued and an armed
// timer is never cancelled. If no call arrives, nothing runs.
package throttle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultInterval is the window used for scroll notifications.
const DefaultInterval = 200 * time.Millisecond

var throttleCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_throttle_calls_total",
	Help: "Throttled trigger calls by result (scheduled or dropped)",
}, []string{"result"})

// Scheduler runs fn once after d has elapsed.
type Scheduler func(d time.Duration, fn func())

func timerScheduler(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(t *Throttle) {
		if s != nil {
			t.schedule = s
		}
	}
}

// Throttle wraps a zero-argument callback.
type Throttle struct {
	mu       sync.Mutex
	pending  bool
	interval time.Duration
	fn       func()
	schedule Scheduler
}

// New creates a throttle around fn. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, fn func(), opts ...Option) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Throttle{
		interval: interval,
		fn:       fn,
		schedule: timerScheduler,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Wrap returns a throttled version of fn with the same signature.
func Wrap(interval time.Duration, fn func(), opts ...Option) func() {
	return New(interval, fn, opts...).Call
}

// Call arms the timer unless an invocation is already pending.
func (t *Throttle) Call() {
	t.mu.Lock()
	if t.pending {
		t.mu.Unlock()
		throttleCallsTotal.WithLabelValues("dropped").Inc()
		return
	}
	t.pending = true
	t.mu.Unlock()

	throttleCallsTotal.WithLabelValues("scheduled").Inc()
	t.schedule(t.interval, t.fire)
}

// Pending reports whether an invocation is armed.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Interval returns the throttle window.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

func (t *Throttle) fire() {
	// Calls made while fn runs are still dropped.
	defer func() {
		t.mu.Lock()
		t.pending = false
		t.mu.Unlock()
	}()
	if t.fn != nil {
		t.fn()
	}
}
