package workflow

import (
	"fmt"
	"log/slog"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeMissingStart  = "missing_start"
	CodeMissingOutput = "missing_output"
	CodeCycle         = "cycle"
	CodeOrphan        = "orphan"
	CodeBadEdge       = "bad_edge"
)

// Issue is one validation finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Node     int      `json:"node"`
}

// Validation is the result of a validation pass.
type Validation struct {
	Issues []Issue `json:"issues,omitempty"`
}

// OK reports whether there are no errors. Warnings do not count.
func (v Validation) OK() bool { return len(v.Errors()) == 0 }

// Errors returns the error-severity issues.
func (v Validation) Errors() []Issue { return v.filter(SeverityError) }

// Warnings returns the warning-severity issues.
func (v Validation) Warnings() []Issue { return v.filter(SeverityWarning) }

// Has reports whether an issue with code is present.
func (v Validation) Has(code string) bool {
	for _, is := range v.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func (v Validation) filter(s Severity) []Issue {
	var out []Issue
	for _, is := range v.Issues {
		if is.Severity == s {
			out = append(out, is)
		}
	}
	return out
}

func (v *Validation) add(s Severity, code string, node int, format string, args ...any) {
	v.Issues = append(v.Issues, Issue{Severity: s, Code: code, Node: node, Message: fmt.Sprintf(format, args...)})
}

// Validate checks g: node 0 must be Start (error), the last node should be
// Output (warning), edges must be acyclic (error) and in range (error), and
// every node after the first should have an incoming edge (warning).
func Validate(g *Graph) Validation {
	n := len(g.Nodes)
	var v Validation
	if n == 0 || g.Nodes[0].Type != Start {
		v.add(SeverityError, CodeMissingStart, 0, "node 0 is not a start node")
	}
	if n == 0 || g.Nodes[n-1].Type != Output {
		v.add(SeverityWarning, CodeMissingOutput, n-1, "last node is not an output node")
	}

	adj := make([][]int, n)
	incoming := make([]int, n)
	for _, e := range g.Edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			v.add(SeverityError, CodeBadEdge, e.From, "edge %d->%d out of range", e.From, e.To)
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
		incoming[e.To]++
	}
	if back := backEdges(adj); len(back) > 0 {
		v.add(SeverityError, CodeCycle, back[0][0], "cycle through edge %d->%d", back[0][0], back[0][1])
	}
	for i := 1; i < n; i++ {
		if incoming[i] == 0 {
			v.add(SeverityWarning, CodeOrphan, i, "node %d (%s) has no incoming edge", i, g.Nodes[i].Type)
		}
	}
	if n > 0 && g.Nodes[0].Type == Start && incoming[0] > 0 {
		v.add(SeverityError, CodeCycle, 0, "start node has incoming edges")
	}
	return v
}

// backEdges runs an iterative depth-first search from every unvisited node
// in index order and returns the edges closing a cycle.
func backEdges(adj [][]int) [][2]int {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(adj))
	var back [][2]int

	type frame struct{ node, next int }
	for root := range adj {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		color[root] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(adj[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			to := adj[top.node][top.next]
			top.next++
			switch color[to] {
			case white:
				color[to] = gray
				stack = append(stack, frame{node: to})
			case gray:
				back = append(back, [2]int{top.node, to})
			}
		}
	}
	return back
}

// AutoInject repairs g in place: cycles lose their back edges, edges into
// the start node are dropped, a missing Start is prepended (shifting every
// edge index by one) and a missing Output is appended after the last node.
// It returns the issues it repaired.
func AutoInject(g *Graph, url string, logger *slog.Logger) []Issue {
	if logger == nil {
		logger = slog.Default()
	}
	v := Validate(g)
	var fixed []Issue

	if v.Has(CodeBadEdge) {
		kept := g.Edges[:0]
		n := len(g.Nodes)
		for _, e := range g.Edges {
			if e.From >= 0 && e.From < n && e.To >= 0 && e.To < n {
				kept = append(kept, e)
			}
		}
		g.Edges = kept
		fixed = append(fixed, pick(v, CodeBadEdge)...)
	}

	if v.Has(CodeCycle) {
		adj := make([][]int, len(g.Nodes))
		for _, e := range g.Edges {
			adj[e.From] = append(adj[e.From], e.To)
		}
		drop := make(map[[2]int]bool)
		for _, b := range backEdges(adj) {
			drop[b] = true
		}
		kept := g.Edges[:0]
		for _, e := range g.Edges {
			if drop[[2]int{e.From, e.To}] || (e.To == 0 && g.Nodes[0].Type == Start) {
				continue
			}
			kept = append(kept, e)
		}
		g.Edges = kept
		fixed = append(fixed, pick(v, CodeCycle)...)
		logger.Info("workflow: removed cycle edges", "count", len(drop))
	}

	if v.Has(CodeMissingStart) {
		for i := range g.Edges {
			g.Edges[i].From++
			g.Edges[i].To++
		}
		g.Nodes = append([]Node{StartNode(url)}, g.Nodes...)
		if len(g.Nodes) > 1 {
			g.Edges = append([]Edge{{From: 0, To: 1, Condition: Success}}, g.Edges...)
		}
		fixed = append(fixed, pick(v, CodeMissingStart)...)
		logger.Info("workflow: injected start node")
	}

	if v.Has(CodeMissingOutput) || g.Nodes[len(g.Nodes)-1].Type != Output {
		last := len(g.Nodes) - 1
		g.Nodes = append(g.Nodes, OutputNode())
		g.Edges = append(g.Edges, Edge{From: last, To: last + 1, Condition: Success})
		fixed = append(fixed, pick(v, CodeMissingOutput)...)
		logger.Info("workflow: injected output node")
	}

	for _, w := range Validate(g).Warnings() {
		logger.Warn("workflow: validation warning", "code", w.Code, "node", w.Node, "message", w.Message)
	}
	return fixed
}

func pick(v Validation, code string) []Issue {
	var out []Issue
	for _, is := range v.Issues {
		if is.Code == code {
			out = append(out, is)
		}
	}
	return out
}

// ValidateProgram checks the flat form with the same rules as Validate,
// plus: the output instruction has no outgoing connections.
func ValidateProgram(p Program) Validation {
	n := len(p)
	var v Validation
	if n == 0 || p[0].Type != OpStart {
		v.add(SeverityError, CodeMissingStart, 0, "instruction 0 is not START")
	}
	if n == 0 || p[n-1].Type != OpOutput {
		v.add(SeverityWarning, CodeMissingOutput, n-1, "last instruction is not OUTPUT")
	} else if len(p[n-1].Connections) > 0 {
		v.add(SeverityError, CodeBadEdge, n-1, "OUTPUT has outgoing connections")
	}

	adj := make([][]int, n)
	incoming := make([]int, n)
	for i, ins := range p {
		for _, c := range ins.Connections {
			if c.To < 0 || c.To >= n {
				v.add(SeverityError, CodeBadEdge, i, "connection %d->%d out of range", i, c.To)
				continue
			}
			adj[i] = append(adj[i], c.To)
			incoming[c.To]++
		}
	}
	if back := backEdges(adj); len(back) > 0 {
		v.add(SeverityError, CodeCycle, back[0][0], "cycle through connection %d->%d", back[0][0], back[0][1])
	}
	for i := 1; i < n; i++ {
		if incoming[i] == 0 {
			v.add(SeverityWarning, CodeOrphan, i, "instruction %d (%s) has no incoming connection", i, p[i].Type)
		}
	}
	return v
}
