package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jmrcs97/FlowCapture-sub000/dom/htmldoc"
	"github.com/jmrcs97/FlowCapture-sub000/idgen"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/sched"
	"github.com/jmrcs97/FlowCapture-sub000/session"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/store"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

const page = `<html><body class="home">
<main id="app"><button id="buy">Buy now</button></main>
</body></html>`

type fixture struct {
	c    *Controller
	doc  *htmldoc.Document
	stop func()
}

func setup(t *testing.T, st TraceStore) *fixture {
	t.Helper()
	doc := htmldoc.MustParse(page, htmldoc.WithURL("https://app.test/"))
	loop := sched.NewLoop(0, nil)
	frame := sched.NewFrame(loop, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	rec := session.New(doc, locator.New(doc, locator.Config{}), frame, sched.SystemClock{},
		session.Config{IDs: idgen.Sequential("s")}, nil)
	c := New(loop, rec, doc, st, Config{IDs: idgen.Sequential("trace_")})

	var once sync.Once
	f := &fixture{c: c, doc: doc, stop: func() {
		once.Do(func() {
			frame.Stop()
			cancel()
			<-loop.Done()
		})
	}}
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) click(sel string) {
	f.c.Ingest(session.TriggerEvent{Type: step.Click, Target: f.doc.Find(sel)})
}

func TestController_Lifecycle(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	if _, err := f.c.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("stop before start: got %v, want ErrNotRecording", err)
	}
	if _, err := f.c.CaptureCheckpoint(ctx, "x"); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("checkpoint before start: got %v, want ErrNotRecording", err)
	}

	st, err := f.c.StartRecording(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Recording || st.TraceID != "trace_1" {
		t.Errorf("start status: %+v", st)
	}
	if _, err := f.c.StartRecording(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second start: got %v, want ErrAlreadyRecording", err)
	}

	if _, err := f.c.CaptureCheckpoint(ctx, "landing"); err != nil {
		t.Fatal(err)
	}
	f.click("#buy")
	if _, err := f.c.MarkCapture(ctx, "after-buy", "full"); err != nil {
		t.Fatal(err)
	}

	st, err = f.c.StopRecording(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Recording || st.Steps != 3 {
		t.Errorf("stop status: %+v", st)
	}

	res, err := f.c.GetTrace(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Compiler != Interpret || res.TraceID != "trace_1" || len(res.Steps) != 3 {
		t.Fatalf("trace: compiler %s id %s steps %d", res.Compiler, res.TraceID, len(res.Steps))
	}
	types := []step.Type{step.Checkpoint, step.Click, step.Capture}
	for i, want := range types {
		if got := res.Steps[i].Trigger.Type; got != want {
			t.Errorf("step %d: got %s, want %s", i, got, want)
		}
	}
	if res.Steps[1].Expression() != "#buy" {
		t.Errorf("click locator: got %q", res.Steps[1].Expression())
	}
	if res.Steps[2].Trigger.Mode != "full" || res.Steps[2].Trigger.Label != "after-buy" {
		t.Errorf("capture trigger: %+v", res.Steps[2].Trigger)
	}
	if res.Graph == nil || !res.Validation.OK() {
		t.Errorf("interpret result: graph %v validation %+v", res.Graph, res.Validation)
	}
	if n := len(res.Program); n < 2 || res.Program[0].Type != workflow.OpStart || res.Program[n-1].Type != workflow.OpOutput {
		t.Errorf("program: %+v", res.Program)
	}
}

func TestController_GetTraceCompilers(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.c.StartRecording(ctx)
	f.click("#buy")
	f.c.StopRecording(ctx)

	res, err := f.c.GetTrace(ctx, Compile)
	if err != nil {
		t.Fatal(err)
	}
	if res.Graph != nil {
		t.Error("compile result carries a graph")
	}
	want := []workflow.Op{workflow.OpStart, workflow.OpClick, workflow.OpOutput}
	if len(res.Program) != len(want) {
		t.Fatalf("program: %+v", res.Program)
	}
	for i, op := range want {
		if res.Program[i].Type != op {
			t.Errorf("op %d: got %s, want %s", i, res.Program[i].Type, op)
		}
	}
	if _, err := f.c.GetTrace(ctx, "bogus"); !errors.Is(err, ErrUnknownCompiler) {
		t.Errorf("bogus compiler: got %v", err)
	}
}

func TestController_DropsEventsWhenIdle(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.click("#buy")
	f.c.StartRecording(ctx)
	st, err := f.c.StopRecording(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Steps != 0 {
		t.Errorf("steps: got %d, want 0", st.Steps)
	}
}

func TestController_Persists(t *testing.T) {
	s := store.OpenMemory(t)
	f := setup(t, s)
	ctx := context.Background()

	f.c.StartRecording(ctx)
	f.click("#buy")
	st, err := f.c.StopRecording(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Message != "recording stopped and saved" {
		t.Errorf("message: got %q", st.Message)
	}

	tr, steps, err := s.GetTrace(ctx, "trace_1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.URL != "https://app.test/" || len(steps) != 1 {
		t.Errorf("stored trace: %+v (%d steps)", tr, len(steps))
	}
	p, err := s.GetWorkflow(ctx, "trace_1", Interpret)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) < 2 || p[0].Type != workflow.OpStart {
		t.Errorf("stored program: %+v", p)
	}
}

func TestController_StoppedLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := setup(t, nil)
	if _, err := f.c.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.click("#buy")
	f.stop()

	if _, err := f.c.StopRecording(context.Background()); !errors.Is(err, sched.ErrLoopStopped) {
		t.Errorf("after stop: got %v, want ErrLoopStopped", err)
	}
	if f.c.Ingest(session.StopEvent{}) {
		t.Error("Ingest accepted on stopped loop")
	}
}
