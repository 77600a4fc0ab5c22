// Package eventloop provides the single task queue that owns all live session
// state, plus the clock abstraction the session timers are built on.
//
// Every mutation of session, transcript, enrichment and billing state happens
// inside a task posted to the loop. Blocking work (network calls, engine
// start/stop) runs off-loop via Go and posts its result back.
package eventloop

import (
	"context"
	"sync"
	"time"
)

// Executor schedules work. Post runs fn on the task queue, Go runs fn on a
// separate goroutine for blocking I/O.
type Executor interface {
	Post(fn func())
	Go(fn func())
}

// Clock is the time source for session timers.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d. Callers that touch
	// loop state must Post from f.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Loop is a single-goroutine task queue.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// New creates a loop with the given queue depth.
func New(depth int) *Loop {
	if depth <= 0 {
		depth = 256
	}
	return &Loop{
		tasks: make(chan func(), depth),
		done:  make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enqueues fn. It blocks when the queue is full and drops fn once the
// loop has been closed.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case <-l.done:
	case l.tasks <- fn:
	}
}

// Go runs fn on its own goroutine. Close waits for these to return.
func (l *Loop) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// Close stops accepting tasks and waits up to timeout for off-loop work.
func (l *Loop) Close(timeout time.Duration) {
	l.once.Do(func() { close(l.done) })

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(timeout):
	}
}

// Call posts fn and waits for it to run. It is the bridge used by goroutines
// outside the loop (HTTP handlers) to read or mutate loop-owned state.
func Call(ctx context.Context, ex Executor, fn func()) error {
	done := make(chan struct{})
	ex.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc arms a timer on clock whose callback is posted onto ex.
func AfterFunc(clock Clock, ex Executor, d time.Duration, fn func()) Timer {
	return clock.AfterFunc(d, func() { ex.Post(fn) })
}
