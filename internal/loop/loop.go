package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpsarena/client/internal/logger"
)

var ErrStopped = errors.New("event loop stopped")

// Loop runs posted tasks one at a time on a single goroutine. State owned by
// a Loop must only be touched from tasks running on it.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case fn := <-l.tasks:
			l.run(fn)
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop task panicked", logger.Fields{"panic": r})
		}
	}()
	fn()
}

func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn. It returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. Never call it from a loop task.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// After posts fn once d has elapsed. Once armed it cannot be cancelled, so fn
// must check whether it is still wanted.
func (l *Loop) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { l.Post(fn) })
}

// Ticker is a repeating task started by Every.
type Ticker struct {
	stopped atomic.Bool
	stop    chan struct{}
	once    sync.Once
}

// Stop prevents any further run, including ticks already queued.
func (t *Ticker) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stop)
	})
}

func (t *Ticker) Stopped() bool {
	return t.stopped.Load()
}

// Every posts fn every d until the returned Ticker is stopped.
func (l *Loop) Every(d time.Duration, fn func()) *Ticker {
	t := &Ticker{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Post(func() {
					if !t.stopped.Load() {
						fn()
					}
				})
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return t
}
