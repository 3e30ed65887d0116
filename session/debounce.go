package session

import "github.com/jmrcs97/FlowCapture-sub000/step"

// debounceInput keeps the latest value typed into a field and opens one
// input session once typing pauses. The step is stamped with the first
// keystroke; dedup measures from the last one.
func (r *Recorder) debounceInput(e TriggerEvent) {
	if p := r.pendingInput; p != nil && p.Target != e.Target {
		r.flushInput()
	}
	at := r.now(e)
	if r.pendingInput == nil {
		e.Timestamp = at
		r.pendingInput = &e
	} else {
		r.pendingInput.Value = e.Value
	}
	r.lastKey = at
	r.inputSlot.Arm(r.cfg.InputDebounce, r.flushInput)
}

func (r *Recorder) flushInput() {
	r.inputSlot.Stop()
	p := r.pendingInput
	r.pendingInput = nil
	if p == nil {
		return
	}
	r.StartSession(*p)
	if l := r.last; l != nil && l.target == p.Target && l.typ.InputFamily() && l.at.Before(r.lastKey) {
		l.at = r.lastKey
	}
}

// debounceScroll accumulates a scroll gesture and opens one scroll session
// at scroll end.
func (r *Recorder) debounceScroll(e TriggerEvent) {
	if p := r.pendingScroll; p != nil && p.Target != e.Target {
		r.flushScroll()
	}
	if r.pendingScroll == nil {
		e.Timestamp = r.now(e)
		r.pendingScroll = &e
	} else {
		p := r.pendingScroll
		p.DeltaX += e.DeltaX
		p.DeltaY += e.DeltaY
		p.ScrollX, p.ScrollY = e.ScrollX, e.ScrollY
	}
	r.scrollSlot.Arm(r.cfg.ScrollDebounce, r.flushScroll)
}

func (r *Recorder) flushScroll() {
	r.scrollSlot.Stop()
	p := r.pendingScroll
	r.pendingScroll = nil
	if p != nil {
		r.StartSession(*p)
	}
}

// debounceNudge sums consecutive height nudges on one element into a
// single expand trigger.
func (r *Recorder) debounceNudge(e TriggerEvent) {
	if p := r.pendingNudge; p != nil && p.Target != e.Target {
		r.flushNudge()
	}
	if r.pendingNudge == nil {
		e.Timestamp = r.now(e)
		e.Type = step.Expand
		r.pendingNudge = &e
	} else {
		r.pendingNudge.ExpandHeight += e.ExpandHeight
	}
	r.nudgeSlot.Arm(r.cfg.NudgeDebounce, r.flushNudge)
}

func (r *Recorder) flushNudge() {
	r.nudgeSlot.Stop()
	p := r.pendingNudge
	r.pendingNudge = nil
	if p != nil {
		r.StartSession(*p)
	}
}

// Flush opens sessions for any debounced triggers immediately, in input,
// scroll, nudge order.
func (r *Recorder) Flush() {
	r.flushInput()
	r.flushScroll()
	r.flushNudge()
}
