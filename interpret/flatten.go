package interpret

import (
	"maps"

	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

// Flatten converts the graph into the flat IR. Labels are special-cased
// per node kind, else borrowed from the node's semantic action. A node
// with one outgoing edge gets a success connection; when it fans out the
// first edge is success and the rest are error.
func (in *Interpreter) Flatten(g *workflow.Graph, actions []SemanticAction) workflow.Program {
	out := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		if e.From >= 0 && e.From < len(out) {
			out[e.From] = append(out[e.From], e.To)
		}
	}

	p := make(workflow.Program, 0, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		ins := workflow.Instruction{
			Type:        n.Type.Op(),
			Label:       flatLabel(n, actions),
			Params:      in.flatParams(n),
			Connections: []workflow.Connection{},
		}
		for k, to := range out[i] {
			c := workflow.Success
			if k > 0 {
				c = workflow.Failure
			}
			ins.Connections = append(ins.Connections, workflow.Connection{To: to, Condition: c})
		}
		p = append(p, ins)
	}
	return p
}

func flatLabel(n *workflow.Node, actions []SemanticAction) string {
	switch n.Type {
	case workflow.Start:
		return "Start"
	case workflow.Output:
		return "Output"
	case workflow.Scan, workflow.ForEach, workflow.WaitVisualStable, workflow.CloseModal:
		return workflow.Label(n.Label)
	}
	if n.Label == "" && n.Action >= 0 && n.Action < len(actions) {
		return actions[n.Action].Label
	}
	return workflow.Label(n.Label)
}

func (in *Interpreter) flatParams(n *workflow.Node) workflow.Params {
	switch n.Type {
	case workflow.Scan:
		sel, _ := n.Params["selector"].(string)
		root, item := SplitSelector(sel)
		p := workflow.Params{"root": root, "item": item}
		if lim, ok := n.Params["limit"]; ok {
			p["limit"] = lim
		}
		return p
	case workflow.ForEach:
		acts := make([]map[string]any, 0, len(n.Children))
		for i := range n.Children {
			c := &n.Children[i]
			cp := in.flatParams(c)
			if c.Type == workflow.Screenshot {
				if _, ok := cp["filename"]; !ok {
					cp["filename"] = in.cfg.ScreenshotFilename
				}
			}
			acts = append(acts, map[string]any{"type": c.Type.Op(), "params": cp})
		}
		p := maps.Clone(n.Params)
		if p == nil {
			p = workflow.Params{}
		}
		p["actions"] = acts
		return p
	}
	if n.Params == nil {
		return workflow.Params{}
	}
	return maps.Clone(n.Params)
}
