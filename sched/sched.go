// Package sched provides the cooperative scheduling primitives the recorder
// runs on: a per-frame Scheduler, a Clock, a serial Loop that gives all
// recorder work a single logical thread, and a Manual scheduler for tests.
package sched

import "time"

// Handle identifies a scheduled callback for cancellation.
type Handle uint64

// Scheduler schedules work on the recorder's logical thread.
type Scheduler interface {
	// Schedule runs fn on the next frame tick.
	Schedule(fn func()) Handle
	// After runs fn once d has elapsed.
	After(d time.Duration, fn func()) Handle
	// Cancel drops a pending callback. Unknown or spent handles are ignored.
	Cancel(h Handle)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// DefaultFrame is the tick interval used when none is configured (~60 Hz).
const DefaultFrame = 16 * time.Millisecond

// Slot is a single-slot debounce timer: arming it cancels whatever was
// pending, so at most one callback is ever queued.
type Slot struct {
	s       Scheduler
	pending Handle
	armed   bool
}

// NewSlot creates a Slot backed by s.
func NewSlot(s Scheduler) *Slot { return &Slot{s: s} }

// Arm replaces any pending callback with fn after d.
func (sl *Slot) Arm(d time.Duration, fn func()) {
	sl.Stop()
	sl.armed = true
	sl.pending = sl.s.After(d, func() {
		sl.armed = false
		fn()
	})
}

// Stop cancels the pending callback, if any. Safe to call repeatedly.
func (sl *Slot) Stop() {
	if sl.armed {
		sl.s.Cancel(sl.pending)
		sl.armed = false
	}
}

// Armed reports whether a callback is pending.
func (sl *Slot) Armed() bool { return sl.armed }
