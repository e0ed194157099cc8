package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do when the loop has exited.
var ErrStopped = errors.New("eventloop: stopped")

// Loop runs posted functions one at a time, in FIFO order, on a single goroutine.
//
// Thread Safety:
//   - Post, Do and AfterFunc are safe to call from any goroutine.
//   - Functions run by the loop must not call Do (it would deadlock).
type Loop struct {
	clock Clock

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New creates a loop using clock for timers. A nil clock means RealClock.
func New(clock Clock) *Loop {
	if clock == nil {
		clock = RealClock()
	}
	return &Loop{
		clock: clock,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Clock returns the loop's time source.
func (l *Loop) Clock() Clock {
	return l.clock
}

// Now returns the current time according to the loop's clock.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues fn to run on the loop. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits until it has returned.
//
// Parameters:
//   - ctx: Bounds the wait; fn may still run after ctx is cancelled
//   - fn: Function to run on the loop
//
// Returns:
//   - error: ctx.Err() or ErrStopped if fn did not complete
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		fn()
		close(finished)
	})

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The loop may have run fn just before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Run processes queued functions until ctx is cancelled.
// Work still queued at that point is discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		batch := l.take()
		for _, fn := range batch {
			if ctx.Err() != nil {
				return nil
			}
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Drain runs queued functions on the calling goroutine until the queue is
// empty, including work posted by the functions themselves. It is meant for
// tests that do not start Run.
func (l *Loop) Drain() {
	for {
		batch := l.take()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch
}

// Timer is a one-shot callback that fires on the loop.
type Timer struct {
	stopped atomic.Bool
	handle  Stopper
}

// AfterFunc arranges for fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.handle = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

// Stop cancels the timer. It is safe to call more than once and on a nil
// Timer. It reports whether this call prevented fn from running.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	if t.stopped.Swap(true) {
		return false
	}
	t.handle.Stop()
	return true
}
