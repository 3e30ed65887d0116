// Package session groups a user trigger and its downstream mutations into
// one atomic Step.
//
// A Recorder owns at most one open Session. A new trigger finalizes the
// previous session before opening its own; the session closes when its
// settle.Monitor reports, or when the host stops recording.
package session

import (
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/idgen"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/sched"
	"github.com/jmrcs97/FlowCapture-sub000/settle"
	"github.com/jmrcs97/FlowCapture-sub000/step"
)

// Config tunes deduplication, debouncing and effect collection.
type Config struct {
	// DedupWindow drops a trigger repeating the previous (target, type).
	// Default: 500ms.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// InputDedupWindow drops input/change-family triggers on the previous
	// target. Default: 1s.
	InputDedupWindow time.Duration `yaml:"input_dedup_window"`

	// InputDebounce delays real-time text capture. Default: 300ms.
	InputDebounce time.Duration `yaml:"input_debounce"`

	// ScrollDebounce detects scroll end. Default: 150ms.
	ScrollDebounce time.Duration `yaml:"scroll_debounce"`

	// NudgeDebounce coalesces height nudges. Default: 400ms.
	NudgeDebounce time.Duration `yaml:"nudge_debounce"`

	// MaxClassToggles bounds the class toggles kept per step. Default: 20.
	MaxClassToggles int `yaml:"max_class_toggles"`

	// MaxMutationBatch caps mutations processed per turn. Default: 200.
	MaxMutationBatch int `yaml:"max_mutation_batch"`

	Settle settle.Config `yaml:"-"`

	// IDs mints step IDs. Default: "step_" + UUIDv7.
	IDs idgen.Generator `yaml:"-"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.DedupWindow <= 0 {
		c.DedupWindow = 500 * time.Millisecond
	}
	if c.InputDedupWindow <= 0 {
		c.InputDedupWindow = time.Second
	}
	if c.InputDebounce <= 0 {
		c.InputDebounce = 300 * time.Millisecond
	}
	if c.ScrollDebounce <= 0 {
		c.ScrollDebounce = 150 * time.Millisecond
	}
	if c.NudgeDebounce <= 0 {
		c.NudgeDebounce = 400 * time.Millisecond
	}
	if c.MaxClassToggles <= 0 {
		c.MaxClassToggles = 20
	}
	if c.MaxMutationBatch <= 0 {
		c.MaxMutationBatch = 200
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("step_", idgen.UUIDv7())
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Settle.Logger == nil {
		c.Settle.Logger = c.Logger
	}
}

// Session is one observation window.
type Session struct {
	id         string
	trigger    step.Trigger
	target     dom.Node
	opened     time.Time
	rootBefore []string
	mutations  []dom.Mutation
	monitor    *settle.Monitor
	finalized  bool
	step       *step.Step
}

// ID returns the step ID the session will produce.
func (s *Session) ID() string { return s.id }

// Trigger returns the captured trigger.
func (s *Session) Trigger() step.Trigger { return s.trigger }

// Finalized reports whether the session produced its Step.
func (s *Session) Finalized() bool { return s.finalized }

// Step returns the produced Step, or nil while open.
func (s *Session) Step() *step.Step { return s.step }

type lastTrigger struct {
	target dom.Node
	typ    step.Type
	at     time.Time
}

type queuedMutation struct {
	session *Session
	m       dom.Mutation
}

// Recorder is the explicit recording context. All methods must be called
// from the scheduler's logical thread.
type Recorder struct {
	cfg      Config
	doc      dom.Document
	resolver *locator.Resolver
	sched    sched.Scheduler
	clock    sched.Clock

	current *Session
	last    *lastTrigger
	steps   []step.Step
	onStep  func(step.Step)

	backlog       []queuedMutation
	drainPending  bool
	drainHandle   sched.Handle
	inputSlot     *sched.Slot
	scrollSlot    *sched.Slot
	nudgeSlot     *sched.Slot
	pendingInput  *TriggerEvent
	lastKey       time.Time
	pendingScroll *TriggerEvent
	pendingNudge  *TriggerEvent
}

// New creates a Recorder. onStep, when non-nil, receives every Step as it
// is finalized.
func New(doc dom.Document, resolver *locator.Resolver, s sched.Scheduler, clock sched.Clock, cfg Config, onStep func(step.Step)) *Recorder {
	cfg.defaults()
	if clock == nil {
		clock = sched.SystemClock{}
	}
	return &Recorder{
		cfg:        cfg,
		doc:        doc,
		resolver:   resolver,
		sched:      s,
		clock:      clock,
		onStep:     onStep,
		inputSlot:  sched.NewSlot(s),
		scrollSlot: sched.NewSlot(s),
		nudgeSlot:  sched.NewSlot(s),
	}
}

// Ingest is the single entry point for host events.
func (r *Recorder) Ingest(ev Event) {
	switch e := ev.(type) {
	case TriggerEvent:
		switch {
		case e.Type == step.Input:
			r.debounceInput(e)
		case e.Type == step.Scroll:
			r.debounceScroll(e)
		case e.Type == step.Expand && e.Nudge:
			r.debounceNudge(e)
		default:
			r.Flush()
			r.StartSession(e)
		}
	case MutationsEvent:
		r.AddMutations(e.Records)
	case StopEvent:
		r.Flush()
		r.FinalizeCurrentSession()
	}
}

// HasActiveSession reports whether a session is open.
func (r *Recorder) HasActiveSession() bool { return r.current != nil }

// Current returns the open session, or nil.
func (r *Recorder) Current() *Session { return r.current }

// Steps returns a copy of the finalized steps in order.
func (r *Recorder) Steps() []step.Step { return slices.Clone(r.steps) }

// Reset drops recorded steps and dedup history. The open session, if any,
// is finalized first.
func (r *Recorder) Reset() {
	r.Close()
	r.steps = nil
	r.last = nil
}

// Close flushes debounced triggers, finalizes the open session and drops
// deferred mutations. Idempotent.
func (r *Recorder) Close() {
	r.Flush()
	r.FinalizeCurrentSession()
	if r.drainPending {
		r.sched.Cancel(r.drainHandle)
		r.drainPending = false
	}
	r.backlog = nil
}

func (r *Recorder) now(ev TriggerEvent) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return r.clock.Now()
}

// duplicate reports whether ev repeats the previous trigger.
func (r *Recorder) duplicate(ev TriggerEvent, at time.Time) bool {
	if r.last == nil || ev.Target != r.last.target {
		return false
	}
	gap := at.Sub(r.last.at)
	if ev.Type == r.last.typ && gap < r.cfg.DedupWindow {
		return true
	}
	return ev.Type.InputFamily() && r.last.typ.InputFamily() && gap < r.cfg.InputDedupWindow
}

// StartSession opens a session for ev, finalizing any open one first. It
// returns nil when ev is a duplicate of the previous trigger.
func (r *Recorder) StartSession(ev TriggerEvent) *Session {
	at := r.now(ev)
	if r.duplicate(ev, at) {
		r.cfg.Logger.Debug("session: duplicate trigger dropped", "type", ev.Type, "target", ev.Target)
		return nil
	}
	r.last = &lastTrigger{target: ev.Target, typ: ev.Type, at: at}
	r.FinalizeCurrentSession()

	s := &Session{
		id:         r.cfg.IDs(),
		trigger:    r.buildTrigger(ev, at),
		target:     ev.Target,
		opened:     r.clock.Now(),
		rootBefore: r.doc.RootClasses(),
		monitor:    settle.New(r.doc, r.sched, r.clock, r.cfg.Settle),
	}
	if ev.Target != dom.NoNode && r.doc.IsAttached(ev.Target) {
		s.monitor.AddCandidate(ev.Target)
		if p := r.doc.Parent(ev.Target); p != dom.NoNode {
			s.monitor.AddCandidate(p)
		}
	}
	r.current = s
	r.cfg.Logger.Debug("session: opened", "id", s.id, "type", ev.Type, "locator", s.trigger.Locator)
	s.monitor.Start(func(rep settle.Report) { r.finalize(s, rep) })
	return s
}

func (r *Recorder) buildTrigger(ev TriggerEvent, at time.Time) step.Trigger {
	w, h := r.doc.Viewport()
	t := step.Trigger{
		Type:         ev.Type,
		Timestamp:    at,
		Metadata:     step.Metadata{URL: r.doc.URL(), ViewportWidth: w, ViewportHeight: h},
		X:            ev.X,
		Y:            ev.Y,
		Button:       ev.Button,
		Modifiers:    ev.Modifiers,
		Key:          ev.Key,
		Value:        ev.Value,
		ScrollX:      ev.ScrollX,
		ScrollY:      ev.ScrollY,
		DeltaX:       ev.DeltaX,
		DeltaY:       ev.DeltaY,
		Label:        ev.Label,
		Mode:         ev.Mode,
		ExpandHeight: ev.ExpandHeight,
	}
	if ev.Target != dom.NoNode && r.doc.IsAttached(ev.Target) {
		if c := r.resolver.ResolveCandidates(ev.Target); c != nil {
			t.Locator = c.Primary
			t.LocatorFallbacks = c.Fallbacks
		}
		el := r.resolver.Target(ev.Target)
		t.Metadata.Tag = r.doc.Tag(el)
		t.Metadata.Role, _ = r.doc.Attr(el, "role")
		t.Metadata.Href, _ = r.doc.Attr(el, "href")
		t.Metadata.Text = truncate(r.doc.Text(el), 80)
	}
	for _, si := range ev.Styles {
		t.Styles = append(t.Styles, step.StyleEdit{
			Locator:    r.resolver.ResolvePrimary(si.Target),
			Properties: si.Properties,
		})
	}
	return t
}

// AddMutation appends m to the open session. Mutations arriving with no
// open session are dropped.
func (r *Recorder) AddMutation(m dom.Mutation) {
	r.addTo(r.current, m)
}

func (r *Recorder) addTo(s *Session, m dom.Mutation) {
	if s == nil || s.finalized || s != r.current {
		return
	}
	s.mutations = append(s.mutations, m)
	switch m.Kind {
	case dom.ChildListChange:
		for _, n := range m.Added {
			if !r.doc.IsAttached(n) {
				continue
			}
			s.monitor.AddNewElement(n, r.resolver.ResolvePrimary(n))
		}
	case dom.AttributeChange:
		s.monitor.AddCandidate(m.Target)
	}
}

// AddMutations queues a batch behind any deferred records and processes at
// most MaxMutationBatch of them this turn; the rest wait for the next tick.
func (r *Recorder) AddMutations(batch []dom.Mutation) {
	if r.current == nil || len(batch) == 0 {
		return
	}
	for _, m := range batch {
		r.backlog = append(r.backlog, queuedMutation{session: r.current, m: m})
	}
	if !r.drainPending {
		r.drain()
	}
}

func (r *Recorder) drain() {
	r.drainPending = false
	n := min(len(r.backlog), r.cfg.MaxMutationBatch)
	for _, q := range r.backlog[:n] {
		r.addTo(q.session, q.m)
	}
	r.backlog = slices.Delete(r.backlog, 0, n)
	if len(r.backlog) > 0 {
		r.drainPending = true
		r.drainHandle = r.sched.Schedule(r.drain)
	}
}

// Deferred returns the number of mutations waiting for the next turn.
func (r *Recorder) Deferred() int { return len(r.backlog) }

// FinalizeCurrentSession closes the open session with a forced report and
// returns its Step, or nil when no session is open.
func (r *Recorder) FinalizeCurrentSession() *step.Step {
	s := r.current
	if s == nil {
		return nil
	}
	if !s.monitor.ForceStabilize() {
		r.finalize(s, settle.Report{Forced: true})
	}
	return s.step
}

func (r *Recorder) finalize(s *Session, rep settle.Report) {
	if s.finalized {
		return
	}
	s.finalized = true

	st := step.Step{
		ID:             s.id,
		Trigger:        s.trigger,
		VisualSettling: rep,
		DurationMs:     r.clock.Now().Sub(s.opened).Milliseconds(),
	}
	st.Effects.ClassToggles = r.classToggles(s)
	if d := diffClasses(s.rootBefore, r.doc.RootClasses()); !d.Empty() {
		st.Effects.RootClassChanges = d
	}
	st.Effects.NewElements = rep.NewElements

	s.monitor.Cleanup()
	s.monitor = nil
	s.mutations = nil
	s.step = &st
	if r.current == s {
		r.current = nil
	}
	r.steps = append(r.steps, st)
	r.cfg.Logger.Debug("session: finalized",
		"id", st.ID, "type", st.Trigger.Type, "stabilized", rep.Stabilized, "timed_out", rep.TimedOut)
	if r.onStep != nil {
		r.onStep(st)
	}
}

// classToggles derives per-element class deltas from attribute mutations,
// deduplicated by locator.
func (r *Recorder) classToggles(s *Session) []step.ClassToggle {
	var out []step.ClassToggle
	seen := make(map[string]bool)
	for _, m := range s.mutations {
		if len(out) >= r.cfg.MaxClassToggles {
			break
		}
		if m.Kind != dom.AttributeChange || m.AttributeName != "class" || !r.doc.IsAttached(m.Target) {
			continue
		}
		now, _ := r.doc.Attr(m.Target, "class")
		d := diffClasses(strings.Fields(m.OldValue), strings.Fields(now))
		if d.Empty() {
			continue
		}
		loc := r.resolver.ResolvePrimary(m.Target)
		if loc == nil || seen[loc.Expression] {
			continue
		}
		seen[loc.Expression] = true
		out = append(out, step.ClassToggle{Locator: loc, Added: d.Added, Removed: d.Removed})
	}
	return out
}

func diffClasses(before, after []string) *step.ClassDiff {
	d := &step.ClassDiff{}
	for _, c := range after {
		if !slices.Contains(before, c) && !slices.Contains(d.Added, c) {
			d.Added = append(d.Added, c)
		}
	}
	for _, c := range before {
		if !slices.Contains(after, c) && !slices.Contains(d.Removed, c) {
			d.Removed = append(d.Removed, c)
		}
	}
	return d
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
