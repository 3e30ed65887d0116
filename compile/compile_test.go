package compile

import (
	"fmt"
	"testing"

	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/settle"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

func clickOn(expr string, kind locator.Kind) step.Step {
	return step.Step{Trigger: step.Trigger{
		Type:     step.Click,
		Locator:  &locator.Locator{Expression: expr, Kind: kind},
		Metadata: step.Metadata{URL: "https://catalog.test/", Tag: "a"},
	}}
}

func capture() step.Step {
	return step.Step{Trigger: step.Trigger{Type: step.Capture, Mode: "viewport"}}
}

func opsOf(p workflow.Program) []workflow.Op {
	out := make([]workflow.Op, len(p))
	for i := range p {
		out[i] = p[i].Type
	}
	return out
}

func count(p workflow.Program, op workflow.Op) int {
	n := 0
	for _, ins := range p {
		if ins.Type == op {
			n++
		}
	}
	return n
}

func wantOps(t *testing.T, p workflow.Program, want ...workflow.Op) {
	t.Helper()
	got := opsOf(p)
	if len(got) != len(want) {
		t.Fatalf("ops: got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("ops: got %v, want %v", got, want)
		}
	}
}

func wellFormed(t *testing.T, p workflow.Program) {
	t.Helper()
	if v := workflow.ValidateProgram(p); len(v.Issues) != 0 {
		t.Errorf("program issues: %+v", v.Issues)
	}
}

func TestCompile_Empty(t *testing.T) {
	p := Compile(nil, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpOutput)
	if p[0].Params["url"] != "about:blank" {
		t.Errorf("url: got %v", p[0].Params["url"])
	}
	wellFormed(t, p)
}

func TestCompile_FoldsSiblingClicks(t *testing.T) {
	var steps []step.Step
	for i := 1; i <= 5; i++ {
		steps = append(steps, clickOn(fmt.Sprintf("ul.items > li:nth-of-type(%d) > a.title", i), locator.KindAncestorPath), capture())
	}
	p := Compile(steps, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpElementScan, workflow.OpForEach, workflow.OpOutput)
	if count(p, workflow.OpClick) != 0 || count(p, workflow.OpScreenshot) != 0 {
		t.Errorf("unfolded pairs remain: %v", opsOf(p))
	}
	wellFormed(t, p)

	scan := p[1].Params
	if scan["root"] != "ul.items" || scan["item"] != "li" || scan["limit"] != 5 {
		t.Errorf("scan params: %+v", scan)
	}
	acts := p[2].Params["actions"].([]map[string]any)
	if len(acts) != 3 {
		t.Fatalf("loop body: %+v", acts)
	}
	if sel := acts[0]["params"].(workflow.Params)["selector"]; sel != "a.title" {
		t.Errorf("sub-path: got %v, want a.title", sel)
	}
	if acts[1]["type"] != workflow.OpWait {
		t.Errorf("second loop action: got %v", acts[1]["type"])
	}
	if fn := acts[2]["params"].(workflow.Params)["filename"]; fn != "item_{{index}}.png" {
		t.Errorf("filename: got %v", fn)
	}
}

func TestCompile_FoldsOnSharedFallback(t *testing.T) {
	var steps []step.Step
	for i := 1; i <= 3; i++ {
		s := clickOn(fmt.Sprintf("#product-%d", i), locator.KindID)
		s.Trigger.LocatorFallbacks = []locator.Locator{{
			Expression: fmt.Sprintf("//div[@class='grid']/article[%d]//button", i),
			Kind:       locator.KindPositionalIndex,
		}}
		steps = append(steps, s, capture())
	}
	p := Compile(steps, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpElementScan, workflow.OpForEach, workflow.OpOutput)
	scan := p[1].Params
	if scan["root"] != "//div[@class='grid']" || scan["item"] != "article" {
		t.Errorf("scan params: %+v", scan)
	}
	if sel := p[2].Params["actions"].([]map[string]any)[0]["params"].(workflow.Params)["selector"]; sel != "button" {
		t.Errorf("sub-path: got %v, want button", sel)
	}
}

func TestCompile_TextLocatorsFold(t *testing.T) {
	steps := []step.Step{
		clickOn(locator.TextPrefix+"Alpha", locator.KindTextContent), capture(),
		clickOn(locator.TextPrefix+"Beta", locator.KindTextContent), capture(),
	}
	p := Compile(steps, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpElementScan, workflow.OpForEach, workflow.OpOutput)
	if p[1].Params["item"] != "a" {
		t.Errorf("item: got %v, want a", p[1].Params["item"])
	}
}

func TestCompile_SameTargetDoesNotFold(t *testing.T) {
	steps := []step.Step{
		clickOn("li:nth-of-type(2) > a", locator.KindAncestorPath), capture(),
		clickOn("li:nth-of-type(2) > a", locator.KindAncestorPath), capture(),
	}
	p := Compile(steps, Options{})
	if count(p, workflow.OpForEach) != 0 || count(p, workflow.OpClick) != 2 {
		t.Errorf("ops: got %v", opsOf(p))
	}
}

func TestCompile_SingleOrBrokenRunDoesNotFold(t *testing.T) {
	steps := []step.Step{
		clickOn("li:nth-of-type(1) > a", locator.KindAncestorPath), capture(),
		clickOn("#other", locator.KindID), capture(),
	}
	p := Compile(steps, Options{})
	wantOps(t, p, workflow.OpStart,
		workflow.OpClick, workflow.OpScreenshot,
		workflow.OpClick, workflow.OpScreenshot,
		workflow.OpOutput)
	wellFormed(t, p)
}

func TestCompile_SkipAndMerge(t *testing.T) {
	c := clickOn("#q", locator.KindID)
	focus := step.Step{Trigger: step.Trigger{Type: step.Focus, Locator: &locator.Locator{Expression: "#q", Kind: locator.KindID}}}
	s1 := step.Step{Trigger: step.Trigger{Type: step.Scroll, DeltaY: 100, Metadata: step.Metadata{ViewportHeight: 1000}}}
	s2 := step.Step{Trigger: step.Trigger{Type: step.Scroll, DeltaY: 200, Metadata: step.Metadata{ViewportHeight: 1000}}}
	up := step.Step{Trigger: step.Trigger{Type: step.Scroll, DeltaY: -50, Metadata: step.Metadata{ViewportHeight: 1000}}}

	p := Compile([]step.Step{c, focus, s1, s2, up}, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpClick, workflow.OpScroll, workflow.OpScroll, workflow.OpOutput)
	down := p[2].Params
	if down["direction"] != "down" || down["pixels"] != 300.0 || down["percent"] != 30 {
		t.Errorf("merged scroll: %+v", down)
	}
	if p[3].Params["direction"] != "up" || p[3].Params["percent"] != 5 {
		t.Errorf("up scroll: %+v", p[3].Params)
	}
	wellFormed(t, p)
}

func TestCompile_StepShapes(t *testing.T) {
	loc := &locator.Locator{Expression: "#f", Kind: locator.KindID}
	steps := []step.Step{
		{Trigger: step.Trigger{Type: step.Submit, Locator: loc}},
		{Trigger: step.Trigger{Type: step.Keydown, Key: "Enter", Locator: loc}},
		{Trigger: step.Trigger{Type: step.Keydown, Key: "Escape"}},
		{Trigger: step.Trigger{Type: step.InputChange, Locator: loc, Value: "hello"}},
		{Trigger: step.Trigger{Type: step.Checkpoint, Label: "start", Mode: "dynamic"}},
		{Trigger: step.Trigger{Type: step.Capture, Mode: "full"}},
		{Trigger: step.Trigger{Type: step.Expand, Locator: loc, ExpandHeight: 900}},
		{Trigger: step.Trigger{Type: step.StyleChange, Styles: []step.StyleEdit{{
			Locator: loc, Properties: map[string]string{"overflow": "visible"},
		}}}},
	}
	p := Compile(steps, Options{})
	wantOps(t, p,
		workflow.OpStart,
		workflow.OpClick, workflow.OpWaitForNavigation,
		workflow.OpClick,
		workflow.OpPrint,
		workflow.OpType,
		workflow.OpScreenshot,
		workflow.OpScreenshot,
		workflow.OpExpand,
		workflow.OpSetStyle,
		workflow.OpOutput,
	)
	if p[1].Params["selector"] != `[type="submit"]` {
		t.Errorf("submit selector: got %v", p[1].Params["selector"])
	}
	if p[3].Params["key"] != "Enter" {
		t.Errorf("enter: %+v", p[3].Params)
	}
	if p[5].Params["value"] != "hello" {
		t.Errorf("type value: got %v", p[5].Params["value"])
	}
	if p[6].Params["mode"] != "dynamic" || p[6].Params["expand_scrollables"] != true {
		t.Errorf("dynamic capture: %+v", p[6].Params)
	}
	if p[7].Params["full_page"] != true {
		t.Errorf("full capture: %+v", p[7].Params)
	}
	if p[8].Params["height"] != 900.0 {
		t.Errorf("expand height: got %v", p[8].Params["height"])
	}
	wellFormed(t, p)
}

func TestCompile_AdvisoryPrintOnLargeShift(t *testing.T) {
	c := clickOn("#toggle", locator.KindID)
	c.VisualSettling = settle.Report{MaxLayoutShift: 400}
	exp := step.Step{
		Trigger:        step.Trigger{Type: step.Expand, ExpandHeight: 400},
		VisualSettling: settle.Report{MaxLayoutShift: 400},
	}
	p := Compile([]step.Step{c, exp}, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpClick, workflow.OpPrint, workflow.OpExpand, workflow.OpOutput)
}

func TestCompile_StartURL(t *testing.T) {
	p := Compile([]step.Step{clickOn("#a", locator.KindID)}, Options{})
	if p[0].Params["url"] != "https://catalog.test/" {
		t.Errorf("url: got %v", p[0].Params["url"])
	}
	p = Compile(nil, Options{StartURL: "https://override.test/"})
	if p[0].Params["url"] != "https://override.test/" {
		t.Errorf("override url: got %v", p[0].Params["url"])
	}
}

func TestSkeletonOf(t *testing.T) {
	cases := []struct {
		loc  locator.Locator
		want string
		ok   bool
	}{
		{locator.Locator{Expression: "ul > li:nth-child(3) > a"}, "ul > li:nth-child({i}) > a", true},
		{locator.Locator{Expression: "div:nth-of-type(1) > li:nth-of-type(4)"}, "div:nth-of-type(1) > li:nth-of-type({i})", true},
		{locator.Locator{Expression: `//a[@title='Item 7']`, Kind: locator.KindPathPredicate}, "//a[@title={v}]", true},
		{locator.Locator{Expression: locator.TextPrefix + "Open", Kind: locator.KindTextContent}, "text:*", true},
		{locator.Locator{Expression: "#save", Kind: locator.KindID}, "", false},
		{locator.Locator{Expression: `//a[@title='Chapter [1]']`, Kind: locator.KindPathPredicate}, "//a[@title={v}]", true},
		{locator.Locator{Expression: `(//li[@data-k="x:nth-child(2)"])[4]`}, `(//li[@data-k="x:nth-child(2)"])[{i}]`, true},
	}
	for _, tc := range cases {
		got, ok := skeletonOf(tc.loc)
		if ok != tc.ok || (ok && got.String() != tc.want) {
			t.Errorf("skeletonOf(%q): got (%q, %v), want (%q, %v)", tc.loc.Expression, got.String(), ok, tc.want, tc.ok)
		}
	}
}

func TestCompile_BracketsInsideLiteralsAreNotPositions(t *testing.T) {
	var steps []step.Step
	for i := 1; i <= 3; i++ {
		steps = append(steps, clickOn(fmt.Sprintf("//a[@title='Chapter [%d]']", i), locator.KindPathPredicate), capture())
	}
	p := Compile(steps, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpElementScan, workflow.OpForEach, workflow.OpOutput)
	scan := p[1].Params
	if scan["root"] != "/html/body" || scan["item"] != "a" || scan["limit"] != 3 {
		t.Errorf("scan params: %+v", scan)
	}

	a := locator.Locator{Expression: "//a[@title='Chapter [1]']"}
	b := locator.Locator{Expression: "//a[@title='Chapter [2]']"}
	ka, _ := skeletonOf(a)
	kb, _ := skeletonOf(b)
	if ka.kind != skelLiteral || !ka.equal(kb) {
		t.Errorf("skeletons: got %v (%d) and %v, want equal literal skeletons", ka, ka.kind, kb)
	}
}

func TestCompile_LoopKeepsClickParams(t *testing.T) {
	var steps []step.Step
	for i := 1; i <= 3; i++ {
		s := clickOn(fmt.Sprintf("ul > li:nth-child(%d) > a", i), locator.KindAncestorPath)
		s.Trigger.Type = step.DblClick
		s.Trigger.Button = 2
		s.Trigger.Metadata.Href = "/item/" + fmt.Sprint(i)
		steps = append(steps, s, capture())
	}
	p := Compile(steps, Options{})
	wantOps(t, p, workflow.OpStart, workflow.OpElementScan, workflow.OpForEach, workflow.OpOutput)
	click := p[2].Params["actions"].([]map[string]any)[0]["params"].(workflow.Params)
	if click["button"] != "right" || click["click_count"] != 2 || click["expect_navigation"] != true {
		t.Errorf("loop click params: got %+v", click)
	}
}
