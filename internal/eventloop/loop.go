// Package eventloop provides a single-owner cooperative event loop.
//
// Every closure posted to a Loop runs on the loop goroutine, one at a time, in
// posting order. State owned by the loop therefore needs no locking as long as
// it is only touched from posted closures.
package eventloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Loop serializes work onto one goroutine. Post never blocks and never drops
// work while the loop is open.
type Loop struct {
	clock  Clock
	logger *logrus.Logger

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// New creates a Loop. A nil clock selects SystemClock.
func New(clock Clock, logger *logrus.Logger) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		clock:  clock,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Clock returns the clock the loop schedules with.
func (l *Loop) Clock() Clock {
	return l.clock
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post enqueues fn. Safe from any goroutine. Returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// After posts fn to the loop once d has elapsed. Stopping the returned timer
// only prevents posting; a closure already queued still runs, so callers
// that can be superseded must re-validate their state when fn runs.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	return l.clock.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Do posts fn and waits for it to run. Returns false if the loop is closed
// or ctx ends first.
func (l *Loop) Do(ctx context.Context, fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run executes posted closures until ctx is cancelled, then closes the loop.
// Closures still queued at that point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.close()

	for {
		l.Drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Drain runs queued closures on the calling goroutine until the queue is
// empty, including closures posted while draining. It returns the number of
// closures run. Drain must not be called concurrently with Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.pop()
		if !ok {
			return n
		}
		l.invoke(fn)
		n++
	}
}

// Closed reports whether the loop has stopped accepting work.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// invoke runs fn, turning a panic into an error log so one bad callback
// cannot take down the loop.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", fmt.Sprint(r)).Error("Event loop callback panicked")
		}
	}()
	fn()
}

func (l *Loop) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
}
