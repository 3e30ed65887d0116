// Package control is the host control interface: it starts and stops
// recordings, injects checkpoints and manual captures, and returns the
// recorded trace with its compiled workflow. Commands run on the
// recorder's serial loop; HTTP and MCP transports wrap the Controller.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/compile"
	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/idgen"
	"github.com/jmrcs97/FlowCapture-sub000/interpret"
	"github.com/jmrcs97/FlowCapture-sub000/sched"
	"github.com/jmrcs97/FlowCapture-sub000/session"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/store"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

var (
	ErrNotRecording     = errors.New("control: not recording")
	ErrAlreadyRecording = errors.New("control: already recording")
	ErrUnknownCompiler  = errors.New("control: unknown compiler")
)

// Compiler names.
const (
	Interpret = "interpret"
	Compile   = "compile"
)

// TraceStore persists finished recordings. *store.Store implements it.
type TraceStore interface {
	SaveTrace(ctx context.Context, tr store.Trace, steps []step.Step) error
	SaveWorkflow(ctx context.Context, traceID, compiler string, p workflow.Program) error
}

// Config configures a Controller.
type Config struct {
	// Compiler is the default compiler for GetTrace and persistence.
	// Default: Interpret.
	Compiler string

	Interpret interpret.Config
	Compile   compile.Options

	// IDs mints trace IDs. Default: "trace_" + UUIDv7.
	IDs   idgen.Generator
	Clock sched.Clock

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Compiler == "" {
		c.Compiler = Interpret
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("trace_", idgen.UUIDv7())
	}
	if c.Clock == nil {
		c.Clock = sched.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Interpret.Logger == nil {
		c.Interpret.Logger = c.Logger
	}
	if c.Compile.Logger == nil {
		c.Compile.Logger = c.Logger
	}
}

// Status is the reply to every command.
type Status struct {
	Recording bool   `json:"recording"`
	TraceID   string `json:"trace_id,omitempty"`
	Steps     int    `json:"steps"`
	Message   string `json:"message,omitempty"`
}

// TraceResult is the recorded trace and its compiled form. Graph is set
// only by the interpret compiler.
type TraceResult struct {
	TraceID    string              `json:"trace_id,omitempty"`
	Compiler   string              `json:"compiler"`
	Steps      []step.Step         `json:"steps"`
	Graph      *workflow.Graph     `json:"graph,omitempty"`
	Program    workflow.Program    `json:"program"`
	Validation workflow.Validation `json:"validation"`
}

// Controller drives one Recorder. The recording state is owned by the
// loop goroutine.
type Controller struct {
	cfg   Config
	loop  *sched.Loop
	rec   *session.Recorder
	doc   dom.Document
	store TraceStore

	recording bool
	traceID   string
	startedAt time.Time
}

// New creates a Controller. rec must be scheduled on loop. st may be nil
// to disable persistence.
func New(loop *sched.Loop, rec *session.Recorder, doc dom.Document, st TraceStore, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{cfg: cfg, loop: loop, rec: rec, doc: doc, store: st}
}

func (c *Controller) status(msg string) Status {
	return Status{Recording: c.recording, TraceID: c.traceID, Steps: len(c.rec.Steps()), Message: msg}
}

// do runs fn on the loop and returns its result.
func (c *Controller) do(ctx context.Context, fn func() (Status, error)) (Status, error) {
	var (
		st  Status
		err error
	)
	if lerr := c.loop.Do(ctx, func() { st, err = fn() }); lerr != nil {
		return Status{}, fmt.Errorf("control: %w", lerr)
	}
	return st, err
}

// StartRecording clears previous steps and begins a new trace.
func (c *Controller) StartRecording(ctx context.Context) (Status, error) {
	return c.do(ctx, func() (Status, error) {
		if c.recording {
			return c.status(""), ErrAlreadyRecording
		}
		c.rec.Reset()
		c.recording = true
		c.traceID = c.cfg.IDs()
		c.startedAt = c.cfg.Clock.Now()
		c.cfg.Logger.Info("control: recording started", "trace", c.traceID, "url", c.doc.URL(), "via", transportOf(ctx))
		return c.status("recording started"), nil
	})
}

// StopRecording finalizes the open session, ends the trace and persists
// it when a store is configured.
func (c *Controller) StopRecording(ctx context.Context) (Status, error) {
	var steps []step.Step
	var tr store.Trace
	st, err := c.do(ctx, func() (Status, error) {
		if !c.recording {
			return c.status(""), ErrNotRecording
		}
		c.rec.Close()
		c.recording = false
		steps = c.rec.Steps()
		tr = store.Trace{ID: c.traceID, URL: c.doc.URL(), StartedAt: c.startedAt, StoppedAt: c.cfg.Clock.Now()}
		c.cfg.Logger.Info("control: recording stopped", "trace", c.traceID, "steps", len(steps), "via", transportOf(ctx))
		return c.status("recording stopped"), nil
	})
	if err != nil || c.store == nil {
		return st, err
	}

	if err := c.store.SaveTrace(ctx, tr, steps); err != nil {
		return st, fmt.Errorf("control: persist trace: %w", err)
	}
	res, err := c.compile(steps, c.cfg.Compiler)
	if err != nil {
		return st, err
	}
	if err := c.store.SaveWorkflow(ctx, tr.ID, res.Compiler, res.Program); err != nil {
		return st, fmt.Errorf("control: persist workflow: %w", err)
	}
	st.Message = "recording stopped and saved"
	return st, nil
}

// CaptureCheckpoint records an initial-state capture of the whole page.
func (c *Controller) CaptureCheckpoint(ctx context.Context, label string) (Status, error) {
	return c.trigger(ctx, session.TriggerEvent{Type: step.Checkpoint, Target: dom.NoNode, Label: label, Mode: "viewport"}, "checkpoint captured")
}

// MarkCapture records a manual screenshot request. mode is viewport, full
// or dynamic.
func (c *Controller) MarkCapture(ctx context.Context, label, mode string) (Status, error) {
	if mode == "" {
		mode = "viewport"
	}
	return c.trigger(ctx, session.TriggerEvent{Type: step.Capture, Target: dom.NoNode, Label: label, Mode: mode}, "capture marked")
}

func (c *Controller) trigger(ctx context.Context, ev session.TriggerEvent, msg string) (Status, error) {
	return c.do(ctx, func() (Status, error) {
		if !c.recording {
			return c.status(""), ErrNotRecording
		}
		c.rec.Ingest(ev)
		return c.status(msg), nil
	})
}

// Status reports the recording state.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	return c.do(ctx, func() (Status, error) { return c.status(""), nil })
}

// Ingest queues a host event. Events outside a recording are dropped. It
// returns false when the loop has stopped.
func (c *Controller) Ingest(ev session.Event) bool {
	return c.loop.Post(func() {
		if c.recording {
			c.rec.Ingest(ev)
		}
	})
}

// GetTrace returns the steps recorded so far, compiled with compiler
// (empty for the configured default).
func (c *Controller) GetTrace(ctx context.Context, compiler string) (TraceResult, error) {
	var steps []step.Step
	var id string
	if err := c.loop.Do(ctx, func() {
		steps = c.rec.Steps()
		id = c.traceID
	}); err != nil {
		return TraceResult{}, fmt.Errorf("control: %w", err)
	}
	res, err := c.compile(steps, compiler)
	res.TraceID = id
	return res, err
}

// compile runs off the loop; steps are an immutable copy.
func (c *Controller) compile(steps []step.Step, compiler string) (TraceResult, error) {
	if compiler == "" {
		compiler = c.cfg.Compiler
	}
	res := TraceResult{Compiler: compiler, Steps: steps}
	if res.Steps == nil {
		res.Steps = []step.Step{}
	}
	switch compiler {
	case Interpret:
		r := interpret.New(c.cfg.Interpret).Interpret(steps)
		res.Graph = r.Graph
		res.Program = r.Program
		res.Validation = workflow.ValidateProgram(r.Program)
	case Compile:
		res.Program = compile.Compile(steps, c.cfg.Compile)
		res.Validation = workflow.ValidateProgram(res.Program)
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownCompiler, compiler)
	}
	return res, nil
}
