package taskloop

import (
	"sync"
	"time"
)

// epoch is the zero instant of manualClock.
var epoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// manualClock is a Clock that only moves when told to.
type manualClock struct {
	now time.Time
	mu  sync.Mutex
}

func newManualClock() *manualClock {
	return &manualClock{now: epoch}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recorder collects an execution order.
type recorder struct {
	order []string
}

// task returns a callable that records name.
func (r *recorder) task(name string) func() error {
	return func() error {
		r.order = append(r.order, name)
		return nil
	}
}

// newTestScheduler wires a scheduler with both queues sharing a manual clock.
func newTestScheduler(opts ...Option) (*Scheduler[func() error], *ShortTaskQueue[func() error], *DelayedTaskRegistry[func() error], *manualClock) {
	clock := newManualClock()
	short := NewShortTaskQueue[func() error]()
	timers := NewDelayedTaskRegistry[func() error](WithClock(clock))
	s := New(short, timers, append([]Option{WithClock(clock)}, opts...)...)
	return s, short, timers, clock
}
