package interpret

import (
	"fmt"
	"testing"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/settle"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

func click(expr string) step.Step {
	return step.Step{Trigger: step.Trigger{
		Type:     step.Click,
		Locator:  &locator.Locator{Expression: expr, Kind: locator.KindAncestorPath},
		Metadata: step.Metadata{URL: "https://shop.test/list", Tag: "button"},
	}}
}

func ops(p workflow.Program) []workflow.Op {
	out := make([]workflow.Op, len(p))
	for i, ins := range p {
		out[i] = ins.Type
	}
	return out
}

func sameOps(got []workflow.Op, want ...workflow.Op) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func checkChain(t *testing.T, p workflow.Program) {
	t.Helper()
	for i, ins := range p {
		if i == len(p)-1 {
			if len(ins.Connections) != 0 {
				t.Errorf("last instruction has connections: %+v", ins.Connections)
			}
			continue
		}
		if len(ins.Connections) != 1 || ins.Connections[0].To != i+1 || ins.Connections[0].Condition != workflow.Success {
			t.Errorf("instruction %d connections: %+v", i, ins.Connections)
		}
	}
}

func TestInterpret_EmptyTrace(t *testing.T) {
	res := New(Config{}).Interpret(nil)
	if !sameOps(ops(res.Program), workflow.OpStart, workflow.OpOutput) {
		t.Fatalf("ops: got %v", ops(res.Program))
	}
	if !res.Validation.OK() || len(res.Validation.Issues) != 0 {
		t.Errorf("validation: %+v", res.Validation.Issues)
	}
	if got := res.Program[0].Params["url"]; got != "about:blank" {
		t.Errorf("url: got %v, want about:blank", got)
	}
	checkChain(t, res.Program)
}

func TestInterpret_CollectionLoop(t *testing.T) {
	var steps []step.Step
	for i := 1; i <= 3; i++ {
		s := click(fmt.Sprintf("li.result:nth-of-type(%d) > button", i))
		s.Effects.RootClassChanges = &step.ClassDiff{Added: []string{"modal-open"}}
		s.VisualSettling = settle.Report{MaxLayoutShift: 20, TotalMs: 400}
		steps = append(steps, s)
	}

	res := New(Config{}).Interpret(steps)
	if len(res.Collections) != 1 || res.Collections[0].ItemCount != 3 {
		t.Fatalf("collections: %+v", res.Collections)
	}
	c := res.Collections[0]
	if c.NormalizedLocator != "li.result > button" {
		t.Errorf("normalized: got %q", c.NormalizedLocator)
	}
	if c.DominantIntent != OpenOverlay || !c.IsConsistent {
		t.Errorf("collection: intent %s consistent %v", c.DominantIntent, c.IsConsistent)
	}

	want := []workflow.Op{workflow.OpStart, workflow.OpElementScan, workflow.OpForEach, workflow.OpOutput}
	if !sameOps(ops(res.Program), want...) {
		t.Fatalf("ops: got %v, want %v", ops(res.Program), want)
	}
	checkChain(t, res.Program)

	scan := res.Program[1].Params
	if scan["root"] != "li.result" || scan["item"] != "button" || scan["limit"] != 3 {
		t.Errorf("scan params: %+v", scan)
	}
	acts, ok := res.Program[2].Params["actions"].([]map[string]any)
	if !ok {
		t.Fatalf("for_each actions: %T", res.Program[2].Params["actions"])
	}
	var got []workflow.Op
	for _, a := range acts {
		got = append(got, a["type"].(workflow.Op))
	}
	if !sameOps(got, workflow.OpClick, workflow.OpWaitVisualStable, workflow.OpScreenshot, workflow.OpCloseModal) {
		t.Errorf("loop body: got %v", got)
	}
	shot := acts[2]["params"].(workflow.Params)
	if shot["filename"] != "item_{{index}}.png" {
		t.Errorf("filename: got %v", shot["filename"])
	}

	var overlay bool
	for _, p := range res.Patterns {
		if p.Kind == OverlayFlowDetected {
			overlay = true
		}
	}
	if !overlay {
		t.Errorf("no OverlayFlowDetected in %+v", res.Patterns)
	}
}

func TestInterpret_SameNodeIsNotACollection(t *testing.T) {
	steps := []step.Step{click("#save"), click("#save")}
	if got := DetectCollections(steps); len(got) != 0 {
		t.Errorf("collections: got %+v", got)
	}
}

func TestInterpret_BracketsInsideLiteralsAreNotPositions(t *testing.T) {
	steps := []step.Step{
		click("//a[@title='Chapter [1]']"),
		click("//a[@title='Chapter [2]']"),
	}
	if got := DetectCollections(steps); len(got) != 0 {
		t.Errorf("collections: got %+v, want none", got)
	}

	steps = append(steps, click("(//section[@aria-label='List [a]']//li)[1]"), click("(//section[@aria-label='List [a]']//li)[2]"))
	got := DetectCollections(steps)
	if len(got) != 1 || got[0].ItemCount != 2 {
		t.Fatalf("collections: got %+v, want one of two items", got)
	}
	if got[0].NormalizedLocator != "(//section[@aria-label='List [a]']//li)" {
		t.Errorf("normalized: got %q", got[0].NormalizedLocator)
	}
}

func TestInterpret_LinearChain(t *testing.T) {
	cp := step.Step{Trigger: step.Trigger{Type: step.Checkpoint, Label: "home"}}
	open := click("#menu")
	open.Effects.NewElements = []settle.NewElement{{
		Locator: &locator.Locator{Expression: "nav.menu"},
		Rect:    dom.Rect{Width: 200, Height: 300},
	}}
	typ := step.Step{Trigger: step.Trigger{
		Type:    step.InputChange,
		Locator: &locator.Locator{Expression: "#q"},
		Value:   "shoes",
	}}
	scroll := step.Step{
		Trigger:        step.Trigger{Type: step.Scroll, DeltaY: 400},
		VisualSettling: settle.Report{MaxLayoutShift: 4, TotalMs: 250},
	}

	res := New(Config{}).Interpret([]step.Step{cp, open, typ, scroll})
	want := []workflow.Op{
		workflow.OpStart,
		workflow.OpClick, workflow.OpScreenshot,
		workflow.OpType,
		workflow.OpScroll, workflow.OpWaitVisualStable, workflow.OpScreenshot,
		workflow.OpOutput,
	}
	if !sameOps(ops(res.Program), want...) {
		t.Fatalf("ops: got %v, want %v", ops(res.Program), want)
	}
	if !res.Validation.OK() {
		t.Errorf("validation: %+v", res.Validation.Issues)
	}
	checkChain(t, res.Program)
	if res.Program[0].Params["url"] != "https://shop.test/list" {
		t.Errorf("url: got %v", res.Program[0].Params["url"])
	}
	if res.Program[2].Params["selector"] != "nav.menu" {
		t.Errorf("screenshot target: got %v", res.Program[2].Params["selector"])
	}
	if res.Program[3].Params["value"] != "shoes" {
		t.Errorf("type value: got %v", res.Program[3].Params["value"])
	}
}

func TestClassify(t *testing.T) {
	in := New(Config{})
	cases := []struct {
		name string
		s    step.Step
		want Intent
	}{
		{"checkpoint", step.Step{Trigger: step.Trigger{Type: step.Checkpoint}}, InitialStateCapture},
		{"overlay", step.Step{
			Trigger: step.Trigger{Type: step.Click},
			Effects: step.Effects{RootClassChanges: &step.ClassDiff{Added: []string{"has-dialog"}}},
		}, OpenOverlay},
		{"expansion", step.Step{
			Trigger:        step.Trigger{Type: step.Click, Metadata: step.Metadata{Tag: "button"}},
			VisualSettling: settle.Report{MaxLayoutShift: 120},
		}, UIExpansion},
		{"large shift on div", step.Step{
			Trigger:        step.Trigger{Type: step.Click, Metadata: step.Metadata{Tag: "div"}},
			VisualSettling: settle.Report{MaxLayoutShift: 120},
		}, VisualTransition},
		{"submit", step.Step{Trigger: step.Trigger{Type: step.Submit}}, FormSubmission},
		{"enter", step.Step{Trigger: step.Trigger{Type: step.Keydown, Key: "Enter"}}, ConfirmAction},
		{"escape", step.Step{Trigger: step.Trigger{Type: step.Keydown, Key: "Escape"}}, CancelAction},
		{"plain", step.Step{Trigger: step.Trigger{Type: step.Click}}, UserInteraction},
		{"unrelated root class", step.Step{
			Trigger: step.Trigger{Type: step.Click},
			Effects: step.Effects{RootClassChanges: &step.ClassDiff{Added: []string{"scrolled"}}},
		}, UserInteraction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := in.classify(&tc.s); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDominantNewElement(t *testing.T) {
	els := []settle.NewElement{
		{Locator: &locator.Locator{Expression: "div.modal-backdrop"}, Rect: dom.Rect{Width: 1280, Height: 800}},
		{Locator: &locator.Locator{Expression: "div.modal"}, Rect: dom.Rect{Width: 600, Height: 400}},
		{Locator: &locator.Locator{Expression: "span.badge"}, Rect: dom.Rect{Width: 20, Height: 20}},
	}
	if got := DominantNewElement(els); got.Locator.Expression != "div.modal" {
		t.Errorf("got %s, want div.modal", got.Locator.Expression)
	}
	only := els[:1]
	if got := DominantNewElement(only); got.Locator.Expression != "div.modal-backdrop" {
		t.Errorf("fallback: got %s", got.Locator.Expression)
	}
	if DominantNewElement(nil) != nil {
		t.Error("empty list should yield nil")
	}
}

func TestSplitSelector(t *testing.T) {
	cases := []struct{ sel, root, item string }{
		{"ul.results > li", "ul.results", "li"},
		{"main section a.card", "main section", "a.card"},
		{`a[title="x > y"]`, "body", `a[title="x > y"]`},
		{"//ul[@id='r']/li", "//ul[@id='r']", "li"},
		{"//section[@a='b/c']//a", "//section[@a='b/c']", "a"},
		{"//button[@name='go']", "/html/body", "//button[@name='go']"},
	}
	for _, tc := range cases {
		root, item := SplitSelector(tc.sel)
		if root != tc.root || item != tc.item {
			t.Errorf("SplitSelector(%q): got (%q, %q), want (%q, %q)", tc.sel, root, item, tc.root, tc.item)
		}
	}
}

func TestNormalizeLocator(t *testing.T) {
	cases := map[string]string{
		"(//div[@class='x'])[3]":                   "(//div[@class='x'])",
		"ul > li:nth-child(4) > a":                 "ul > li > a",
		"li.result:nth-of-type(2) > span":          "li.result > span",
		"//a[@title='Chapter [1]']":                "//a[@title='Chapter [1]']",
		`li[data-n="x:nth-child(3)"]:nth-child(5)`: `li[data-n="x:nth-child(3)"]`,
	}
	for in, want := range cases {
		if got := NormalizeLocator(in); got != want {
			t.Errorf("NormalizeLocator(%q): got %q, want %q", in, got, want)
		}
	}
}
