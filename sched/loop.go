package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrLoopStopped is returned when work is posted to a loop that has exited.
var ErrLoopStopped = errors.New("sched: loop stopped")

// Loop executes posted closures one at a time on a single goroutine. It is
// the recorder's logical thread: host events, frame ticks and control
// commands all pass through it, so the components need no locking.
type Loop struct {
	ch     chan func()
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewLoop creates a Loop with the given queue capacity (default 1024).
func NewLoop(capacity int, logger *slog.Logger) *Loop {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		ch:     make(chan func(), capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes closures until ctx is cancelled. Pending closures are
// discarded on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.ch:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("sched: loop callback panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It returns false if the loop has exited.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.ch <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Frame is a real-time Scheduler that delivers callbacks onto a Loop.
type Frame struct {
	loop     *Loop
	interval time.Duration

	mu      sync.Mutex
	next    Handle
	pending map[Handle]*time.Timer
}

// NewFrame creates a Frame scheduler posting to loop every interval
// (DefaultFrame when zero).
func NewFrame(loop *Loop, interval time.Duration) *Frame {
	if interval <= 0 {
		interval = DefaultFrame
	}
	return &Frame{loop: loop, interval: interval, pending: make(map[Handle]*time.Timer)}
}

func (f *Frame) Schedule(fn func()) Handle { return f.After(f.interval, fn) }

func (f *Frame) After(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	h := f.next
	f.pending[h] = time.AfterFunc(d, func() {
		f.loop.Post(func() {
			if f.take(h) {
				fn()
			}
		})
	})
	return h
}

func (f *Frame) Cancel(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.pending[h]; ok {
		t.Stop()
		delete(f.pending, h)
	}
}

// Stop cancels every pending callback.
func (f *Frame) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, t := range f.pending {
		t.Stop()
		delete(f.pending, h)
	}
}

// Len returns the number of pending callbacks.
func (f *Frame) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// take reports whether h is still live and removes it.
func (f *Frame) take(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[h]; !ok {
		return false
	}
	delete(f.pending, h)
	return true
}
