package sched

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler and Clock. Nothing runs until the
// test calls Tick or Advance.
type Manual struct {
	now    time.Time
	frame  time.Duration
	next   Handle
	ticks  []manualEntry
	timers []manualTimer
}

type manualEntry struct {
	h  Handle
	fn func()
}

type manualTimer struct {
	h   Handle
	at  time.Time
	seq Handle
	fn  func()
}

// NewManual returns a Manual clock starting at start. Each Tick advances the
// clock by frame (DefaultFrame when zero).
func NewManual(start time.Time, frame time.Duration) *Manual {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Manual{now: start, frame: frame}
}

func (m *Manual) Now() time.Time { return m.now }

// Frame returns the per-tick clock advance.
func (m *Manual) Frame() time.Duration { return m.frame }

func (m *Manual) Schedule(fn func()) Handle {
	m.next++
	m.ticks = append(m.ticks, manualEntry{h: m.next, fn: fn})
	return m.next
}

func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.next++
	m.timers = append(m.timers, manualTimer{h: m.next, at: m.now.Add(d), seq: m.next, fn: fn})
	return m.next
}

func (m *Manual) Cancel(h Handle) {
	for i, e := range m.ticks {
		if e.h == h {
			m.ticks = append(m.ticks[:i], m.ticks[i+1:]...)
			return
		}
	}
	for i, t := range m.timers {
		if t.h == h {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Tick advances the clock by one frame, fires due timers, then runs every
// frame callback that was scheduled before the tick began. Callbacks
// scheduled while ticking wait for the next Tick. It returns how many
// callbacks ran.
func (m *Manual) Tick() int {
	batch := m.ticks
	m.ticks = nil
	m.now = m.now.Add(m.frame)
	ran := m.fireTimers()
	for _, e := range batch {
		e.fn()
		ran++
	}
	return ran
}

// Advance ticks frame by frame until d has elapsed.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	for m.now.Before(end) {
		m.Tick()
	}
}

// RunUntilIdle ticks until nothing is pending or max ticks ran. It returns
// the number of ticks performed.
func (m *Manual) RunUntilIdle(max int) int {
	n := 0
	for n < max && m.Pending() > 0 {
		m.Tick()
		n++
	}
	return n
}

// Pending returns the number of queued frame callbacks and timers.
func (m *Manual) Pending() int { return len(m.ticks) + len(m.timers) }

func (m *Manual) fireTimers() int {
	ran := 0
	for {
		due := -1
		for i, t := range m.timers {
			if t.at.After(m.now) {
				continue
			}
			if due < 0 || t.at.Before(m.timers[due].at) ||
				(t.at.Equal(m.timers[due].at) && t.seq < m.timers[due].seq) {
				due = i
			}
		}
		if due < 0 {
			return ran
		}
		t := m.timers[due]
		m.timers = append(m.timers[:due], m.timers[due+1:]...)
		t.fn()
		ran++
	}
}

// sortedTimerDeadlines is used by tests to inspect pending timers.
func (m *Manual) sortedTimerDeadlines() []time.Time {
	out := make([]time.Time, 0, len(m.timers))
	for _, t := range m.timers {
		out = append(out, t.at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
