// Package looptest provides a manual clock and a queued executor so session
// components can be driven deterministically from a single test goroutine.
package looptest

import (
	"sort"
	"sync"
	"time"

	"ai-live-copilot-service/internal/service/eventloop"
)

// Clock is a manually advanced eventloop.Clock. Timer callbacks run
// synchronously inside Advance, in deadline order.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) eventloop.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for i, other := range t.clock.timers {
		if other == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			break
		}
	}
	return true
}

// Advance moves the clock forward by d, firing every timer that comes due,
// including timers armed by callbacks during the advance.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool {
			if c.timers[i].at.Equal(c.timers[j].at) {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].at.Before(c.timers[j].at)
		})
		if len(c.timers) == 0 || c.timers[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		next := c.timers[0]
		c.timers = c.timers[1:]
		next.stopped = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.fn()
	}
}

// PendingTimers is the number of armed timers.
func (c *Clock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Executor runs posted tasks inline, run-to-completion, and parks Go work
// until the test releases it with RunPending or RunNext.
type Executor struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
	parked   []func()
}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Post(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		next()
		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

func (e *Executor) Go(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parked = append(e.parked, fn)
}

// Parked is the number of Go calls waiting to run.
func (e *Executor) Parked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.parked)
}

// RunNext runs the oldest parked Go call. It reports false if none was parked.
func (e *Executor) RunNext() bool {
	e.mu.Lock()
	if len(e.parked) == 0 {
		e.mu.Unlock()
		return false
	}
	next := e.parked[0]
	e.parked = e.parked[1:]
	e.mu.Unlock()
	next()
	return true
}

// RunPending runs parked Go calls until none remain and returns how many ran.
func (e *Executor) RunPending() int {
	n := 0
	for e.RunNext() {
		n++
	}
	return n
}
