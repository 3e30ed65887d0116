package interpret

import (
	"fmt"

	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

// SynthesizeWorkflow builds the graph. The first CollectionInteraction
// pattern, if any, yields a Scan/ForEach loop; otherwise the actions are
// chained linearly.
func (in *Interpreter) SynthesizeWorkflow(url string, actions []SemanticAction, patterns []Pattern) *workflow.Graph {
	for i := range patterns {
		if patterns[i].Kind == CollectionInteraction && patterns[i].Collection != nil {
			return in.collectionWorkflow(url, patterns[i].Collection, actions)
		}
	}
	return in.linearWorkflow(url, actions)
}

type builder struct {
	g workflow.Graph
}

func (b *builder) add(n workflow.Node) {
	if n.ID == "" {
		n.ID = fmt.Sprintf("n%d", len(b.g.Nodes))
	}
	if i := len(b.g.Nodes); i > 0 {
		b.g.Edges = append(b.g.Edges, workflow.Edge{From: i - 1, To: i, Condition: workflow.Success})
	}
	b.g.Nodes = append(b.g.Nodes, n)
}

func (in *Interpreter) collectionWorkflow(url string, c *CollectionPattern, actions []SemanticAction) *workflow.Graph {
	var b builder
	b.add(workflow.StartNode(url))
	b.add(workflow.Node{
		ID:     "scan",
		Type:   workflow.Scan,
		Label:  "Scan " + c.NormalizedLocator,
		Params: workflow.Params{"selector": c.NormalizedLocator, "limit": c.ItemCount},
		Action: -1,
	})

	var stabilize *StabilizationRule
	var capture *CaptureTarget
	first := -1
	for _, si := range c.Steps {
		if si < 0 || si >= len(actions) {
			continue
		}
		a := &actions[si]
		if first < 0 {
			first = si
		}
		if a.RequiresStabilization && stabilize == nil {
			stabilize = a.StabilizationRule
		}
		if capture == nil {
			capture = a.CaptureTarget
		}
	}

	children := []workflow.Node{{
		ID: "item_click", Type: workflow.Click, Label: "Click item",
		Params: workflow.Params{"target": "item"}, Action: first,
	}}
	if stabilize != nil {
		children = append(children, waitNode("item_wait", stabilize))
	}
	shot := workflow.Params{"filename": in.cfg.ScreenshotFilename}
	if capture != nil && capture.Locator != nil {
		shot["selector"] = capture.Locator.Expression
	}
	children = append(children, workflow.Node{
		ID: "item_screenshot", Type: workflow.Screenshot, Label: "Capture item", Params: shot, Action: -1,
	})
	if c.DominantIntent == OpenOverlay {
		children = append(children, workflow.Node{
			ID: "item_close", Type: workflow.CloseModal, Label: "Close overlay", Params: workflow.Params{}, Action: -1,
		})
	}

	b.add(workflow.Node{
		ID:       "for_each",
		Type:     workflow.ForEach,
		Label:    fmt.Sprintf("For each of %d items", c.ItemCount),
		Params:   workflow.Params{"source": "scan"},
		Children: children,
		Action:   -1,
	})
	b.add(workflow.OutputNode())
	return &b.g
}

func (in *Interpreter) linearWorkflow(url string, actions []SemanticAction) *workflow.Graph {
	var b builder
	b.add(workflow.StartNode(url))
	for i := range actions {
		a := &actions[i]
		if a.Intent == InitialStateCapture {
			continue
		}
		n := actionNode(a)
		n.Action = i
		b.add(n)
		if a.RequiresStabilization {
			w := waitNode("", a.StabilizationRule)
			w.Action = i
			b.add(w)
		}
		if (a.Intent == OpenOverlay || a.Intent == VisualTransition) && n.Type != workflow.Screenshot {
			p := workflow.Params{"mode": "viewport"}
			if a.CaptureTarget != nil && a.CaptureTarget.Locator != nil {
				p["selector"] = a.CaptureTarget.Locator.Expression
			}
			b.add(workflow.Node{Type: workflow.Screenshot, Label: "Capture result", Params: p, Action: i})
		}
	}
	b.add(workflow.OutputNode())
	return &b.g
}

func waitNode(id string, r *StabilizationRule) workflow.Node {
	p := workflow.Params{"min_stable_frames": 3}
	if r != nil {
		p["timeout_ms"] = r.MaxWaitMs
		p["min_stable_frames"] = r.MinStableFrames
	}
	return workflow.Node{ID: id, Type: workflow.WaitVisualStable, Label: "Wait for visual stability", Params: p, Action: -1}
}

// actionNode maps an action to its graph node by trigger type.
func actionNode(a *SemanticAction) workflow.Node {
	t := a.Trigger
	sel := ""
	if t.Locator != nil {
		sel = t.Locator.Expression
	}
	p := workflow.Params{}
	if sel != "" {
		p["selector"] = sel
	}
	if len(t.LocatorFallbacks) > 0 {
		fb := make([]string, 0, len(t.LocatorFallbacks))
		for _, l := range t.LocatorFallbacks {
			fb = append(fb, l.Expression)
		}
		p["fallbacks"] = fb
	}

	n := workflow.Node{Label: a.Label, Params: p}
	switch t.Type {
	case step.Click, step.DblClick, step.Focus:
		n.Type = workflow.Click
		if t.Type == step.DblClick {
			p["click_count"] = 2
		}
	case step.Submit:
		n.Type = workflow.Click
		p["submit"] = true
	case step.Input, step.Change, step.InputChange:
		n.Type = workflow.Type
		p["value"] = t.Value
	case step.Keydown:
		n.Type = workflow.Keypress
		p["key"] = t.Key
	case step.Scroll:
		n.Type = workflow.Scroll
		p["delta_x"] = t.DeltaX
		p["delta_y"] = t.DeltaY
	case step.Capture:
		n.Type = workflow.Screenshot
		p["mode"] = modeOr(t.Mode, "viewport")
		if t.Label != "" {
			p["filename"] = t.Label + ".png"
		}
	case step.StyleChange, step.BatchStyle:
		n.Type = workflow.SetStyle
		p["styles"] = styleParams(t.Styles)
	case step.Expand:
		n.Type = workflow.Expand
		p["height"] = t.ExpandHeight
	default:
		n.Type = workflow.Print
		p["message"] = a.Label
	}
	return n
}

func modeOr(m, def string) string {
	if m == "" {
		return def
	}
	return m
}

func styleParams(edits []step.StyleEdit) []map[string]any {
	out := make([]map[string]any, 0, len(edits))
	for _, e := range edits {
		m := map[string]any{"properties": e.Properties}
		if e.Locator != nil {
			m["selector"] = e.Locator.Expression
		}
		out = append(out, m)
	}
	return out
}
