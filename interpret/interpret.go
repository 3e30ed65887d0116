// Package interpret turns a recorded trace into a validated workflow graph.
//
// The pipeline detects repeated-item collections, derives a semantic
// action per step, identifies higher-level patterns, synthesizes a graph
// (a Scan/ForEach loop when a collection exists, a linear chain
// otherwise), validates and repairs it, and flattens it into the IR.
package interpret

import (
	"log/slog"

	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

// Config tunes intent classification.
type Config struct {
	// NoiseFloorPx is the layout shift above which a step needs to wait
	// for stability. Default: 1.
	NoiseFloorPx float64 `yaml:"noise_floor_px"`

	// SignificantShiftPx is the shift that makes a button-like click an
	// expansion. Default: 50.
	SignificantShiftPx float64 `yaml:"significant_shift_px"`

	// ScreenshotFilename is the per-item file name inside loops.
	// Default: "item_{{index}}.png".
	ScreenshotFilename string `yaml:"screenshot_filename"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.NoiseFloorPx <= 0 {
		c.NoiseFloorPx = 1
	}
	if c.SignificantShiftPx <= 0 {
		c.SignificantShiftPx = 50
	}
	if c.ScreenshotFilename == "" {
		c.ScreenshotFilename = "item_{{index}}.png"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is everything one interpretation pass produced.
type Result struct {
	Collections []CollectionPattern `json:"collections"`
	Actions     []SemanticAction    `json:"actions"`
	Patterns    []Pattern           `json:"patterns"`
	Graph       *workflow.Graph     `json:"graph"`
	Validation  workflow.Validation `json:"validation"`
	Repairs     []workflow.Issue    `json:"repairs,omitempty"`
	Program     workflow.Program    `json:"program"`
}

// Interpreter runs the pipeline with one configuration.
type Interpreter struct {
	cfg Config
}

// New creates an Interpreter.
func New(cfg Config) *Interpreter {
	cfg.defaults()
	return &Interpreter{cfg: cfg}
}

// Interpret compiles steps. An empty trace yields Start -> Output.
func (in *Interpreter) Interpret(steps []step.Step) Result {
	url := startURL(steps)
	var res Result
	res.Collections = DetectCollections(steps)
	res.Actions = in.DeriveSemanticActions(steps)
	res.Patterns = IdentifyPatterns(res.Collections, res.Actions)
	res.Graph = in.SynthesizeWorkflow(url, res.Actions, res.Patterns)

	res.Validation = workflow.Validate(res.Graph)
	for _, is := range res.Validation.Errors() {
		in.cfg.Logger.Warn("interpret: invalid graph", "code", is.Code, "message", is.Message)
	}
	res.Repairs = workflow.AutoInject(res.Graph, url, in.cfg.Logger)
	res.Validation = workflow.Validate(res.Graph)
	res.Program = in.Flatten(res.Graph, res.Actions)

	in.cfg.Logger.Debug("interpret: done",
		"steps", len(steps), "collections", len(res.Collections), "nodes", len(res.Graph.Nodes))
	return res
}

func startURL(steps []step.Step) string {
	for _, s := range steps {
		if s.Trigger.Metadata.URL != "" {
			return s.Trigger.Metadata.URL
		}
	}
	return "about:blank"
}
