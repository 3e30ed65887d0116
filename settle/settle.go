// Package settle detects when a page has stopped moving after an
// interaction.
//
// A Monitor samples the geometry of a set of nodes once per scheduler tick
// and sums the per-frame movement into a single delta. It settles once the
// delta stays under a threshold for enough consecutive frames and a
// minimum wait has passed, or when a hard timeout expires.
package settle

import (
	"log/slog"
	"math"
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/sched"
)

// State is the monitor lifecycle.
type State int

const (
	Idle State = iota
	Observing
	Stable
	TimedOut
	Stopped
)

func (s State) String() string {
	switch s {
	case Observing:
		return "observing"
	case Stable:
		return "stable"
	case TimedOut:
		return "timed_out"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Config tunes convergence detection.
type Config struct {
	// DeltaThreshold is the per-frame movement, in pixels, under which a
	// frame counts as stable. Default: 0.5.
	DeltaThreshold float64 `yaml:"delta_threshold"`

	// MinStableFrames is the stable streak required to settle. Default: 3.
	MinStableFrames int `yaml:"min_stable_frames"`

	// MinWait is the minimum observation time. Default: 150ms.
	MinWait time.Duration `yaml:"min_wait"`

	// MaxTimeout forces settlement. Default: 3s.
	MaxTimeout time.Duration `yaml:"max_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.DeltaThreshold <= 0 {
		c.DeltaThreshold = 0.5
	}
	if c.MinStableFrames <= 0 {
		c.MinStableFrames = 3
	}
	if c.MinWait <= 0 {
		c.MinWait = 150 * time.Millisecond
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewElement is a node added during observation, with its first-seen box.
type NewElement struct {
	Locator *locator.Locator `json:"locator,omitempty"`
	Tag     string           `json:"tag,omitempty"`
	Rect    dom.Rect         `json:"rect"`
}

// Report is delivered once when the monitor settles.
type Report struct {
	FramesObserved   int          `json:"frames_observed"`
	MaxLayoutShift   float64      `json:"max_layout_shift"`
	SettleFrame      *int         `json:"settle_frame"`
	Stabilized       bool         `json:"stabilized"`
	TimedOut         bool         `json:"timed_out"`
	Forced           bool         `json:"forced,omitempty"`
	TotalMs          int64        `json:"total_ms"`
	NewElements      []NewElement `json:"new_elements,omitempty"`
	MaxCSSDurationMs int64        `json:"max_css_duration_ms"`
}

type tracked struct {
	node dom.Node
	last dom.Rect
}

// Monitor is a single convergence detector. It must be driven from the
// scheduler's logical thread.
type Monitor struct {
	cfg   Config
	doc   dom.Document
	sched sched.Scheduler
	clock sched.Clock

	state       State
	nodes       []tracked
	index       map[dom.Node]bool
	newElements []NewElement
	seenNew     map[dom.Node]bool

	frames      int
	stable      int
	settleFrame *int
	maxShift    float64
	started     time.Time

	tick      sched.Handle
	deadline  sched.Handle
	scheduled bool
	onSettled func(Report)
}

// New creates an idle Monitor.
func New(doc dom.Document, s sched.Scheduler, clock sched.Clock, cfg Config) *Monitor {
	cfg.defaults()
	if clock == nil {
		clock = sched.SystemClock{}
	}
	return &Monitor{
		cfg:     cfg,
		doc:     doc,
		sched:   s,
		clock:   clock,
		index:   make(map[dom.Node]bool),
		seenNew: make(map[dom.Node]bool),
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State { return m.state }

// Len returns the number of monitored nodes.
func (m *Monitor) Len() int { return len(m.nodes) }

func (m *Monitor) closed() bool {
	return m.state == Stable || m.state == TimedOut || m.state == Stopped
}

// AddCandidate monitors n and takes its first sample immediately.
// Detached nodes and nodes already monitored are ignored.
func (m *Monitor) AddCandidate(n dom.Node) bool {
	if n == dom.NoNode || m.closed() || m.index[n] {
		return false
	}
	_, ok := m.track(n)
	return ok
}

// track returns the last sampled rectangle of n, measuring and monitoring
// it when it is not yet tracked.
func (m *Monitor) track(n dom.Node) (dom.Rect, bool) {
	if m.index[n] {
		for i := range m.nodes {
			if m.nodes[i].node == n {
				return m.nodes[i].last, true
			}
		}
		return dom.Rect{}, false
	}
	g, err := m.doc.Measure(n)
	if err != nil {
		return dom.Rect{}, false
	}
	m.index[n] = true
	m.nodes = append(m.nodes, tracked{node: n, last: g.Rect})
	return g.Rect, true
}

// AddNewElement monitors n and records its first-seen rectangle as a new
// element of this observation.
func (m *Monitor) AddNewElement(n dom.Node, loc *locator.Locator) {
	if n == dom.NoNode || m.closed() || m.seenNew[n] {
		return
	}
	rect, ok := m.track(n)
	if !ok {
		return
	}
	m.seenNew[n] = true
	m.newElements = append(m.newElements, NewElement{Locator: loc, Tag: m.doc.Tag(n), Rect: rect})
}

// Start resets counters and begins observation. onSettled runs exactly
// once, on settlement or ForceStabilize.
func (m *Monitor) Start(onSettled func(Report)) {
	if m.state == Stopped {
		return
	}
	m.cancel()
	m.state = Observing
	m.frames, m.stable, m.settleFrame, m.maxShift = 0, 0, nil, 0
	m.started = m.clock.Now()
	m.onSettled = onSettled
	m.deadline = m.sched.After(m.cfg.MaxTimeout, func() {
		if m.state == Observing {
			m.finish(TimedOut, false)
		}
	})
	m.scheduleTick()
}

func (m *Monitor) scheduleTick() {
	m.tick = m.sched.Schedule(m.step)
	m.scheduled = true
}

func (m *Monitor) cancel() {
	if m.scheduled {
		m.sched.Cancel(m.tick)
		m.sched.Cancel(m.deadline)
		m.scheduled = false
	}
}

// step is one frame of observation.
func (m *Monitor) step() {
	if m.state != Observing {
		return
	}
	m.frames++

	var delta float64
	kept := m.nodes[:0]
	for _, t := range m.nodes {
		if !m.doc.IsAttached(t.node) {
			delete(m.index, t.node)
			continue
		}
		g, err := m.doc.Measure(t.node)
		if err != nil {
			delete(m.index, t.node)
			continue
		}
		delta += math.Abs(g.Rect.Top-t.last.Top) + math.Abs(g.Rect.Left-t.last.Left) +
			math.Abs(g.Rect.Width-t.last.Width) + math.Abs(g.Rect.Height-t.last.Height)
		t.last = g.Rect
		kept = append(kept, t)
	}
	clear(m.nodes[len(kept):])
	m.nodes = kept

	m.maxShift = math.Max(m.maxShift, delta)
	if delta < m.cfg.DeltaThreshold {
		m.stable++
		if m.settleFrame == nil {
			f := m.frames
			m.settleFrame = &f
		}
	} else {
		m.stable = 0
		m.settleFrame = nil
	}

	elapsed := m.clock.Now().Sub(m.started)
	switch {
	case m.stable >= m.cfg.MinStableFrames && elapsed >= m.cfg.MinWait:
		m.finish(Stable, false)
	case elapsed >= m.cfg.MaxTimeout:
		m.finish(TimedOut, false)
	default:
		m.scheduleTick()
	}
}

// ForceStabilize settles immediately with Stabilized=false, Forced=true.
// It reports whether a callback was delivered.
func (m *Monitor) ForceStabilize() bool {
	if m.state != Observing {
		return false
	}
	m.finish(Stable, true)
	return true
}

func (m *Monitor) finish(state State, forced bool) {
	m.cancel()
	m.state = state
	r := m.report()
	r.Forced = forced
	r.Stabilized = state == Stable && !forced
	r.TimedOut = state == TimedOut
	m.cfg.Logger.Debug("settle: settled",
		"state", state.String(), "frames", r.FramesObserved, "max_shift", r.MaxLayoutShift, "total_ms", r.TotalMs)

	cb := m.onSettled
	m.onSettled = nil
	if cb != nil {
		cb(r)
	}
}

func (m *Monitor) report() Report {
	r := Report{
		FramesObserved: m.frames,
		MaxLayoutShift: m.maxShift,
		SettleFrame:    m.settleFrame,
		TotalMs:        m.clock.Now().Sub(m.started).Milliseconds(),
	}
	if len(m.newElements) > 0 {
		r.NewElements = append([]NewElement(nil), m.newElements...)
	}
	var longest time.Duration
	for _, t := range m.nodes {
		longest = max(longest, m.doc.AnimationDuration(t.node))
	}
	r.MaxCSSDurationMs = longest.Milliseconds()
	return r
}

// Stop cancels observation without delivering a report. Idempotent.
func (m *Monitor) Stop() {
	m.cancel()
	m.onSettled = nil
	if m.state == Observing || m.state == Idle {
		m.state = Stopped
	}
}

// Cleanup stops the monitor and releases every tracked node. Idempotent.
func (m *Monitor) Cleanup() {
	m.Stop()
	m.nodes = nil
	m.newElements = nil
	clear(m.index)
	clear(m.seenNew)
}
