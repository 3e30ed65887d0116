package settle

import (
	"testing"
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/dom/htmldoc"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/sched"
)

const page = `<html><body><div id="panel"><p id="body">text</p></div></body></html>`

func setup(t *testing.T) (*htmldoc.Document, *sched.Manual, *Monitor) {
	t.Helper()
	d := htmldoc.MustParse(page)
	clk := sched.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 50*time.Millisecond)
	return d, clk, New(d, clk, clk, Config{})
}

func TestMonitor_SettlesAtMinStableFrames(t *testing.T) {
	d, clk, m := setup(t)
	m.AddCandidate(d.Find("#panel"))

	var reports []Report
	m.Start(func(r Report) { reports = append(reports, r) })

	clk.Tick()
	clk.Tick()
	if len(reports) != 0 {
		t.Fatalf("settled after 2 frames, want 3")
	}
	clk.Tick()
	if len(reports) != 1 {
		t.Fatalf("reports: got %d, want 1", len(reports))
	}
	r := reports[0]
	if !r.Stabilized || r.TimedOut || r.Forced {
		t.Errorf("flags: got %+v", r)
	}
	if r.FramesObserved != 3 {
		t.Errorf("FramesObserved: got %d, want 3", r.FramesObserved)
	}
	if r.SettleFrame == nil || *r.SettleFrame != 1 {
		t.Errorf("SettleFrame: got %v, want 1", r.SettleFrame)
	}
	if m.State() != Stable {
		t.Errorf("state: got %s, want stable", m.State())
	}
	if clk.Pending() != 0 {
		t.Errorf("pending callbacks after settle: %d", clk.Pending())
	}
}

func TestMonitor_ShiftResetsStreak(t *testing.T) {
	d, clk, m := setup(t)
	panel := d.Find("#panel")
	d.SetRect(panel, dom.Rect{Width: 100, Height: 40})
	m.AddCandidate(panel)

	var got *Report
	m.Start(func(r Report) { got = &r })

	d.SetRect(panel, dom.Rect{Top: 4, Width: 100, Height: 46})
	clk.Tick()
	for i := 0; i < 3 && got == nil; i++ {
		clk.Tick()
	}
	if got == nil {
		t.Fatal("never settled")
	}
	if got.MaxLayoutShift != 10 {
		t.Errorf("MaxLayoutShift: got %v, want 10", got.MaxLayoutShift)
	}
	if got.FramesObserved != 4 || got.SettleFrame == nil || *got.SettleFrame != 2 {
		t.Errorf("frames %d settleFrame %v, want 4 and 2", got.FramesObserved, got.SettleFrame)
	}
}

func TestMonitor_TimeoutIsHardCeiling(t *testing.T) {
	d, clk, m := setup(t)
	panel := d.Find("#panel")
	m.AddCandidate(panel)

	var got *Report
	m.Start(func(r Report) { got = &r })
	for i := 1; got == nil && i < 1000; i++ {
		d.SetRect(panel, dom.Rect{Top: float64(i * 10), Width: 100, Height: 40})
		clk.Tick()
	}
	if got == nil {
		t.Fatal("never timed out")
	}
	if !got.TimedOut || got.Stabilized {
		t.Errorf("flags: got %+v", got)
	}
	if got.TotalMs > 3000 {
		t.Errorf("TotalMs: got %d, want <= 3000", got.TotalMs)
	}
	if m.State() != TimedOut {
		t.Errorf("state: got %s", m.State())
	}
}

func TestMonitor_DropsDetachedNodes(t *testing.T) {
	d, clk, m := setup(t)
	p := d.Find("#body")
	m.AddCandidate(p)
	m.AddCandidate(d.Find("#panel"))
	if m.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", m.Len())
	}

	settled := false
	m.Start(func(Report) { settled = true })
	d.Remove(p)
	clk.Tick()
	if m.Len() != 1 {
		t.Errorf("Len after detach: got %d, want 1", m.Len())
	}
	clk.Advance(time.Second)
	if !settled {
		t.Error("monitor did not settle")
	}
	if m.AddCandidate(p) {
		t.Error("detached node accepted")
	}
}

func TestMonitor_ForceStabilize(t *testing.T) {
	d, clk, m := setup(t)
	m.AddCandidate(d.Find("#panel"))

	calls := 0
	var got Report
	m.Start(func(r Report) { calls++; got = r })
	clk.Tick()
	if !m.ForceStabilize() {
		t.Fatal("ForceStabilize returned false while observing")
	}
	if m.ForceStabilize() {
		t.Error("second ForceStabilize delivered again")
	}
	clk.Advance(5 * time.Second)
	if calls != 1 {
		t.Fatalf("callbacks: got %d, want 1", calls)
	}
	if got.Stabilized || !got.Forced || got.TimedOut {
		t.Errorf("flags: got %+v", got)
	}
}

type measureCounter struct {
	*htmldoc.Document
	calls map[dom.Node]int
}

func (c *measureCounter) Measure(n dom.Node) (dom.Geometry, error) {
	c.calls[n]++
	return c.Document.Measure(n)
}

func TestMonitor_NewElementMeasuredOnce(t *testing.T) {
	d := htmldoc.MustParse(page)
	clk := sched.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 50*time.Millisecond)
	doc := &measureCounter{Document: d, calls: make(map[dom.Node]int)}
	m := New(doc, clk, clk, Config{})

	body := d.Find("#body")
	d.SetRect(body, dom.Rect{Width: 120, Height: 40})
	m.AddNewElement(body, nil)
	if n := doc.calls[body]; n != 1 {
		t.Errorf("Measure calls: got %d, want 1", n)
	}

	panel := d.Find("#panel")
	d.SetRect(panel, dom.Rect{Width: 80, Height: 20})
	m.AddCandidate(panel)
	m.AddNewElement(panel, nil)
	if n := doc.calls[panel]; n != 1 {
		t.Errorf("Measure calls for tracked node: got %d, want 1", n)
	}

	var got Report
	m.Start(func(r Report) { got = r })
	m.ForceStabilize()
	if len(got.NewElements) != 2 || got.NewElements[0].Rect.Width != 120 || got.NewElements[1].Rect.Width != 80 {
		t.Errorf("new elements: got %+v", got.NewElements)
	}
}

func TestMonitor_NewElementsAndCSSDuration(t *testing.T) {
	d, clk, m := setup(t)
	panel := d.Find("#panel")
	m.AddCandidate(panel)

	mut, err := d.Append(panel, `<div class="modal">hi</div>`)
	if err != nil {
		t.Fatal(err)
	}
	added := mut.Added[0]
	d.SetRect(added, dom.Rect{Top: 10, Left: 10, Width: 300, Height: 200})
	d.SetAnimationDuration(added, 250*time.Millisecond)

	loc := &locator.Locator{Expression: "div.modal", Kind: locator.KindClassCombination}
	m.AddNewElement(added, loc)
	m.AddNewElement(added, loc)

	var got Report
	m.Start(func(r Report) { got = r })
	clk.Advance(time.Second)

	if len(got.NewElements) != 1 {
		t.Fatalf("NewElements: got %d, want 1", len(got.NewElements))
	}
	ne := got.NewElements[0]
	if ne.Rect.Width != 300 || ne.Locator.Expression != "div.modal" || ne.Tag != "div" {
		t.Errorf("new element: got %+v", ne)
	}
	if got.MaxCSSDurationMs != 250 {
		t.Errorf("MaxCSSDurationMs: got %d, want 250", got.MaxCSSDurationMs)
	}
}

func TestMonitor_StopAndCleanupIdempotent(t *testing.T) {
	d, clk, m := setup(t)
	m.AddCandidate(d.Find("#panel"))
	m.Start(func(Report) { t.Error("stopped monitor delivered a report") })

	m.Stop()
	m.Stop()
	m.Cleanup()
	m.Cleanup()
	if clk.Pending() != 0 {
		t.Errorf("pending after stop: %d", clk.Pending())
	}
	clk.Advance(5 * time.Second)
	if m.Len() != 0 || m.State() != Stopped {
		t.Errorf("after cleanup: len %d state %s", m.Len(), m.State())
	}
}
