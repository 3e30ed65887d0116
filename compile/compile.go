// Package compile translates a recorded trace directly into the flat IR,
// one instruction per step, then folds repeated click-and-capture runs
// into Scan/ForEach loops.
package compile

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

// Options tunes compilation.
type Options struct {
	// StartURL overrides the START url. Default: first step URL, else
	// "about:blank".
	StartURL string `yaml:"start_url"`

	// ViewportHeight scales scroll distances into percentages when a step
	// carries no viewport size. Default: 800.
	ViewportHeight int `yaml:"viewport_height"`

	// NavigationTimeoutMs bounds WAIT_FOR_NAVIGATION after a submit.
	// Default: 10000.
	NavigationTimeoutMs int64 `yaml:"navigation_timeout_ms"`

	// AdvisoryShiftPx is the unexplained layout shift that produces an
	// advisory PRINT. Default: 150.
	AdvisoryShiftPx float64 `yaml:"advisory_shift_px"`

	// MinLoopPairs is the number of consecutive click/screenshot pairs
	// that fold into a loop. Default: 2.
	MinLoopPairs int `yaml:"min_loop_pairs"`

	// LoopWaitMs is the WAIT inside folded loops. Default: 500.
	LoopWaitMs int64 `yaml:"loop_wait_ms"`

	// ScreenshotFilename is the per-item file name inside folded loops.
	// Default: "item_{{index}}.png".
	ScreenshotFilename string `yaml:"screenshot_filename"`

	Logger *slog.Logger `yaml:"-"`
}

func (o *Options) defaults() {
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 800
	}
	if o.NavigationTimeoutMs <= 0 {
		o.NavigationTimeoutMs = 10000
	}
	if o.AdvisoryShiftPx <= 0 {
		o.AdvisoryShiftPx = 150
	}
	if o.MinLoopPairs < 2 {
		o.MinLoopPairs = 2
	}
	if o.LoopWaitMs <= 0 {
		o.LoopWaitMs = 500
	}
	if o.ScreenshotFilename == "" {
		o.ScreenshotFilename = "item_{{index}}.png"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// node is an instruction before chaining. locs holds a click's primary
// and fallback locators for loop folding.
type node struct {
	ins  workflow.Instruction
	locs []locator.Locator
	tag  string
}

// Compile translates steps into a linear IR program and folds loops. An
// empty trace yields START -> OUTPUT.
func Compile(steps []step.Step, opts Options) workflow.Program {
	opts.defaults()
	c := &compiler{opts: opts}

	url := opts.StartURL
	if url == "" {
		url = "about:blank"
		for _, s := range steps {
			if s.Trigger.Metadata.URL != "" {
				url = s.Trigger.Metadata.URL
				break
			}
		}
	}

	nodes := []node{{ins: instr(workflow.OpStart, "Start", workflow.Params{"url": url})}}
	for i := range steps {
		if c.skip(steps, i) {
			continue
		}
		nodes = append(nodes, c.translate(&steps[i])...)
	}
	nodes = append(nodes, node{ins: instr(workflow.OpOutput, "Output", workflow.Params{})})

	before := len(nodes)
	nodes = c.fold(nodes)

	p := make(workflow.Program, len(nodes))
	for i := range nodes {
		p[i] = nodes[i].ins
	}
	p.Chain()
	opts.Logger.Debug("compile: done", "steps", len(steps), "instructions", len(p), "folded", before-len(nodes))
	return p
}

type compiler struct {
	opts Options
	// pending scroll distance merged from skipped scrolls
	pendingX, pendingY float64
}

func instr(op workflow.Op, label string, p workflow.Params) workflow.Instruction {
	return workflow.Instruction{Type: op, Label: workflow.Label(label), Params: p, Connections: []workflow.Connection{}}
}

// skip drops a focus that follows a click on the same locator, and a
// scroll followed by a scroll in the same direction. Skipped scroll
// distance is carried into the later scroll.
func (c *compiler) skip(steps []step.Step, i int) bool {
	s := &steps[i]
	switch s.Trigger.Type {
	case step.Focus:
		if i > 0 && steps[i-1].Trigger.Type.ClickLike() && steps[i-1].Expression() == s.Expression() {
			return true
		}
	case step.Scroll:
		if i+1 < len(steps) && steps[i+1].Trigger.Type == step.Scroll &&
			scrollDir(&steps[i+1].Trigger) == scrollDir(&s.Trigger) {
			c.pendingX += s.Trigger.DeltaX
			c.pendingY += s.Trigger.DeltaY
			return true
		}
	}
	return false
}

func scrollDir(t *step.Trigger) string {
	if t.DeltaY == 0 && t.DeltaX != 0 {
		if t.DeltaX < 0 {
			return "left"
		}
		return "right"
	}
	if t.DeltaY < 0 {
		return "up"
	}
	return "down"
}

func selectorParams(t *step.Trigger) workflow.Params {
	p := workflow.Params{}
	if t.Locator != nil {
		p["selector"] = t.Locator.Expression
		if t.Locator.Advisory {
			p["advisory"] = true
		}
	}
	if len(t.LocatorFallbacks) > 0 {
		fb := make([]string, 0, len(t.LocatorFallbacks))
		for _, l := range t.LocatorFallbacks {
			fb = append(fb, l.Expression)
		}
		p["fallbacks"] = fb
	}
	return p
}

func describe(t *step.Trigger) string {
	switch {
	case t.Metadata.Text != "":
		return fmt.Sprintf("%q", t.Metadata.Text)
	case t.Locator != nil:
		return t.Locator.Expression
	case t.Metadata.Tag != "":
		return t.Metadata.Tag
	}
	return "element"
}

var buttons = map[int]string{1: "middle", 2: "right"}

// translate builds the instructions for one step.
func (c *compiler) translate(s *step.Step) []node {
	t := &s.Trigger
	var out []node
	switch t.Type {
	case step.Click, step.DblClick:
		p := selectorParams(t)
		if b, ok := buttons[t.Button]; ok {
			p["button"] = b
		}
		if t.Type == step.DblClick {
			p["click_count"] = 2
		}
		if navigates(t.Metadata.Href) {
			p["expect_navigation"] = true
		}
		out = append(out, node{ins: instr(workflow.OpClick, "Click "+describe(t), p), locs: s.Locators(), tag: t.Metadata.Tag})

	case step.Input, step.InputChange, step.Change:
		p := selectorParams(t)
		p["value"] = t.Value
		p["clear"] = true
		out = append(out, node{ins: instr(workflow.OpType, "Type into "+describe(t), p)})

	case step.Scroll:
		dx, dy := t.DeltaX+c.pendingX, t.DeltaY+c.pendingY
		c.pendingX, c.pendingY = 0, 0
		vh := t.Metadata.ViewportHeight
		if vh <= 0 {
			vh = c.opts.ViewportHeight
		}
		dist := math.Abs(dy)
		if dy == 0 {
			dist = math.Abs(dx)
		}
		dir := scrollDir(&step.Trigger{DeltaX: dx, DeltaY: dy})
		pct := int(math.Round(dist / float64(vh) * 100))
		p := workflow.Params{"direction": dir, "percent": pct, "pixels": dist}
		out = append(out, node{ins: instr(workflow.OpScroll, fmt.Sprintf("Scroll %s %d%%", dir, pct), p)})

	case step.Submit:
		p := workflow.Params{"selector": `[type="submit"]`}
		if t.Locator != nil {
			p["form"] = t.Locator.Expression
		}
		out = append(out,
			node{ins: instr(workflow.OpClick, "Submit form", p)},
			node{ins: instr(workflow.OpWaitForNavigation, "Wait for navigation",
				workflow.Params{"timeout_ms": c.opts.NavigationTimeoutMs})},
		)

	case step.Keydown:
		switch t.Key {
		case "Enter":
			p := selectorParams(t)
			p["key"] = "Enter"
			out = append(out, node{ins: instr(workflow.OpClick, "Press Enter on "+describe(t), p)})
		default:
			out = append(out, node{ins: instr(workflow.OpPrint, "Key "+t.Key,
				workflow.Params{"message": "key pressed: " + t.Key})})
		}

	case step.Focus:
		p := selectorParams(t)
		p["focus"] = true
		out = append(out, node{ins: instr(workflow.OpClick, "Focus "+describe(t), p)})

	case step.Checkpoint, step.Capture:
		out = append(out, node{ins: instr(workflow.OpScreenshot, captureLabel(t), screenshotParams(t))})

	case step.StyleChange, step.BatchStyle:
		styles := make([]map[string]any, 0, len(t.Styles))
		for _, e := range t.Styles {
			m := map[string]any{"properties": e.Properties}
			if e.Locator != nil {
				m["selector"] = e.Locator.Expression
			}
			styles = append(styles, m)
		}
		p := selectorParams(t)
		p["styles"] = styles
		out = append(out, node{ins: instr(workflow.OpSetStyle, "Apply styles", p)})

	case step.Expand:
		p := selectorParams(t)
		p["height"] = t.ExpandHeight
		out = append(out, node{ins: instr(workflow.OpExpand, "Expand "+describe(t), p)})

	default:
		out = append(out, node{ins: instr(workflow.OpPrint, "Unhandled "+string(t.Type),
			workflow.Params{"message": "unhandled step type " + string(t.Type)})})
	}

	if shift := s.VisualSettling.MaxLayoutShift; shift > c.opts.AdvisoryShiftPx && !explicitLayout(t.Type) {
		out = append(out, node{ins: instr(workflow.OpPrint, "Large layout shift",
			workflow.Params{"message": fmt.Sprintf("layout shifted %.0fpx after %s", shift, t.Type)})})
	}
	return out
}

func explicitLayout(t step.Type) bool {
	return t == step.StyleChange || t == step.BatchStyle || t == step.Expand
}

func navigates(href string) bool {
	return href != "" && href[0] != '#' && !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func captureLabel(t *step.Trigger) string {
	if t.Label != "" {
		return "Screenshot " + t.Label
	}
	return "Screenshot"
}

// screenshotParams shapes the capture mode: viewport, full page, or
// dynamic height with scrollable regions expanded.
func screenshotParams(t *step.Trigger) workflow.Params {
	p := workflow.Params{}
	if t.Label != "" {
		p["filename"] = t.Label + ".png"
	}
	switch t.Mode {
	case "full", "full_page":
		p["mode"] = "full"
		p["full_page"] = true
	case "dynamic":
		p["mode"] = "dynamic"
		p["full_page"] = true
		p["expand_scrollables"] = true
	default:
		p["mode"] = "viewport"
	}
	return p
}
