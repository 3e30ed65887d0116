// Package workflow holds the compiled workflow forms: a nested node/edge
// Graph and the flat instruction Program, with validation and repair.
package workflow

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// NodeType is a graph node kind.
type NodeType string

const (
	Start             NodeType = "start"
	Scan              NodeType = "scan"
	ForEach           NodeType = "for_each"
	Click             NodeType = "click"
	Type              NodeType = "type"
	Keypress          NodeType = "keypress"
	Scroll            NodeType = "scroll"
	Wait              NodeType = "wait"
	WaitVisualStable  NodeType = "wait_visual_stable"
	WaitForNavigation NodeType = "wait_for_navigation"
	Screenshot        NodeType = "screenshot"
	CloseModal        NodeType = "close_modal"
	Print             NodeType = "print"
	SetStyle          NodeType = "set_style"
	Expand            NodeType = "expand"
	Output            NodeType = "output"
)

// Op is a flat IR instruction type.
type Op string

const (
	OpStart             Op = "START"
	OpElementScan       Op = "ELEMENT_SCAN"
	OpForEach           Op = "FOR_EACH"
	OpClick             Op = "CLICK"
	OpType              Op = "TYPE"
	OpKeypress          Op = "KEYPRESS"
	OpScroll            Op = "SCROLL"
	OpWait              Op = "WAIT"
	OpWaitVisualStable  Op = "WAIT_VISUAL_STABLE"
	OpWaitForNavigation Op = "WAIT_FOR_NAVIGATION"
	OpScreenshot        Op = "SCREENSHOT"
	OpCloseModal        Op = "CLOSE_MODAL"
	OpPrint             Op = "PRINT"
	OpSetStyle          Op = "SET_STYLE"
	OpExpand            Op = "EXPAND"
	OpOutput            Op = "OUTPUT"
)

var opTable = map[NodeType]Op{
	Start:             OpStart,
	Scan:              OpElementScan,
	ForEach:           OpForEach,
	Click:             OpClick,
	Type:              OpType,
	Keypress:          OpKeypress,
	Scroll:            OpScroll,
	Wait:              OpWait,
	WaitVisualStable:  OpWaitVisualStable,
	WaitForNavigation: OpWaitForNavigation,
	Screenshot:        OpScreenshot,
	CloseModal:        OpCloseModal,
	Print:             OpPrint,
	SetStyle:          OpSetStyle,
	Expand:            OpExpand,
	Output:            OpOutput,
}

// Op maps a node type through the IR type table. Unknown types map to
// PRINT so a program never carries an unknown instruction.
func (t NodeType) Op() Op {
	if op, ok := opTable[t]; ok {
		return op
	}
	return OpPrint
}

// Params are type-specific node parameters.
type Params map[string]any

// Condition labels an edge.
type Condition string

const (
	Success Condition = "success"
	Failure Condition = "error"
)

// Node is one graph node. Action indexes the semantic action it was built
// from, or -1.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Label    string   `json:"label,omitempty"`
	Params   Params   `json:"params,omitempty"`
	Children []Node   `json:"children,omitempty"`
	Action   int      `json:"action"`
}

// Edge connects two node indices.
type Edge struct {
	From      int       `json:"from"`
	To        int       `json:"to"`
	Condition Condition `json:"condition"`
}

// Graph is the nested workflow form.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"connections"`
}

// Connection is an outgoing IR edge.
type Connection struct {
	To        int       `json:"to"`
	Condition Condition `json:"condition"`
}

// Instruction is one flat IR step.
type Instruction struct {
	Type        Op           `json:"type"`
	Label       string       `json:"label"`
	Params      Params       `json:"params"`
	Connections []Connection `json:"connections"`
}

// Program is the flat IR. Indices are array positions.
type Program []Instruction

// Empty returns the graph compiled from no steps.
func Empty(url string) *Graph {
	return &Graph{
		Nodes: []Node{StartNode(url), OutputNode()},
		Edges: []Edge{{From: 0, To: 1, Condition: Success}},
	}
}

// StartNode builds the entry node.
func StartNode(url string) Node {
	return Node{ID: "start", Type: Start, Label: "Start", Params: Params{"url": url}, Action: -1}
}

// OutputNode builds the terminal node.
func OutputNode() Node {
	return Node{ID: "output", Type: Output, Label: "Output", Params: Params{}, Action: -1}
}

// Chain wires the program into one linear success chain, replacing any
// existing connections.
func (p Program) Chain() {
	for i := range p {
		if i == len(p)-1 {
			p[i].Connections = []Connection{}
			continue
		}
		p[i].Connections = []Connection{{To: i + 1, Condition: Success}}
	}
}

var labelPolicy = bluemonday.StrictPolicy()

// Label strips markup from s, collapses whitespace and caps it at 80 runes.
func Label(s string) string {
	s = html.UnescapeString(labelPolicy.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > 80 {
		s = string([]rune(s)[:77]) + "..."
	}
	return s
}
