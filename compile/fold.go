package compile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

type skelKind int

const (
	skelIndex skelKind = iota
	skelLiteral
	skelText
)

// skeleton is a tokenized locator with its varying part blanked.
type skeleton struct {
	path locator.Path
	kind skelKind
}

const (
	indexMark   = "{i}"
	literalMark = "{v}"
)

func (s skeleton) String() string {
	if s.kind == skelText {
		return "text:*"
	}
	return s.path.String()
}

func (s skeleton) equal(o skeleton) bool {
	return s.kind == o.kind && s.path.Equal(o.path)
}

// skeletonOf blanks the last positional index of a structural locator,
// or else its last quoted literal. Text locators share one fixed
// skeleton.
func skeletonOf(l locator.Locator) (skeleton, bool) {
	if l.Kind == locator.KindTextContent {
		return skeleton{kind: skelText}, true
	}
	if !l.Structural() {
		return skeleton{}, false
	}
	p := locator.Tokenize(l.Expression)
	if i := p.Last(locator.TokenIndex); i >= 0 {
		term := p[i].Text
		blank := term[:strings.IndexAny(term, "([")+1] + indexMark + term[len(term)-1:]
		return skeleton{path: p.Blank(i, blank), kind: skelIndex}, true
	}
	if i := p.Last(locator.TokenLiteral); i >= 0 {
		return skeleton{path: p.Blank(i, literalMark), kind: skelLiteral}, true
	}
	return skeleton{}, false
}

func skeletons(locs []locator.Locator) []skeleton {
	var out []skeleton
	for _, l := range locs {
		s, ok := skeletonOf(l)
		if ok && !slices.ContainsFunc(out, s.equal) {
			out = append(out, s)
		}
	}
	return out
}

func intersect(a, b []skeleton) []skeleton {
	var out []skeleton
	for _, s := range a {
		if slices.ContainsFunc(b, s.equal) {
			out = append(out, s)
		}
	}
	return out
}

func (c *compiler) isPair(nodes []node, i int) bool {
	return i+1 < len(nodes) &&
		nodes[i].ins.Type == workflow.OpClick && len(nodes[i].locs) > 0 &&
		nodes[i+1].ins.Type == workflow.OpScreenshot
}

// run measures the fold-able pair run starting at i. It returns the
// shared skeleton and the number of pairs.
func (c *compiler) run(nodes []node, i int) (skeleton, int) {
	if !c.isPair(nodes, i) {
		return skeleton{}, 0
	}
	shared := skeletons(nodes[i].locs)
	exprs := map[string]bool{nodes[i].locs[0].Expression: true}
	n := 1
	for j := i + 2; len(shared) > 0 && c.isPair(nodes, j); j += 2 {
		next := intersect(shared, skeletons(nodes[j].locs))
		if len(next) == 0 {
			break
		}
		shared = next
		exprs[nodes[j].locs[0].Expression] = true
		n++
	}
	if len(shared) == 0 || len(exprs) < 2 {
		return skeleton{}, 0
	}
	return shared[0], n
}

func (c *compiler) fold(nodes []node) []node {
	out := make([]node, 0, len(nodes))
	for i := 0; i < len(nodes); {
		if sk, n := c.run(nodes, i); n >= c.opts.MinLoopPairs {
			out = append(out, c.loop(nodes[i:i+2*n], sk)...)
			c.opts.Logger.Debug("compile: folded loop", "skeleton", sk.String(), "pairs", n)
			i += 2 * n
			continue
		}
		out = append(out, nodes[i])
		i++
	}
	return out
}

// loop replaces a run of click/screenshot pairs with ELEMENT_SCAN and
// FOR_EACH.
func (c *compiler) loop(run []node, sk skeleton) []node {
	root, item, sub := triple(sk, run[0].tag)
	n := len(run) / 2

	shot := workflow.Params{"filename": c.opts.ScreenshotFilename}
	if m, ok := run[1].ins.Params["mode"]; ok {
		shot["mode"] = m
	}
	if fp, ok := run[1].ins.Params["full_page"]; ok {
		shot["full_page"] = fp
	}
	click := workflow.Params{"target": "item"}
	for _, k := range []string{"button", "click_count", "expect_navigation"} {
		if v, ok := run[0].ins.Params[k]; ok {
			click[k] = v
		}
	}
	if sub != "" {
		click["selector"] = sub
	}
	actions := []map[string]any{
		{"type": workflow.OpClick, "params": click},
		{"type": workflow.OpWait, "params": workflow.Params{"ms": c.opts.LoopWaitMs}},
		{"type": workflow.OpScreenshot, "params": shot},
	}
	return []node{
		{ins: instr(workflow.OpElementScan, "Scan "+item,
			workflow.Params{"root": root, "item": item, "limit": n})},
		{ins: instr(workflow.OpForEach, fmt.Sprintf("For each of %d items", n),
			workflow.Params{"actions": actions})},
	}
}

// triple splits a skeleton into the scan root, the repeated item and the
// path from the item to the clicked element.
func triple(sk skeleton, tag string) (root, item, sub string) {
	if sk.kind == skelText {
		if tag == "" {
			tag = "*"
		}
		return "body", tag, ""
	}
	p := sk.path
	start, end := p.Segment(p.Last(locator.TokenHole))
	seg := p[start:end]

	if sk.kind == skelIndex {
		item = seg.Without(locator.TokenHole).String()
		if strings.HasPrefix(item, "(") && strings.HasSuffix(item, ")") {
			item = item[1 : len(item)-1]
		}
	} else {
		item = seg.String()
		if k := strings.IndexByte(item, '['); k >= 0 {
			item = item[:k]
		}
		if item == "" {
			item = "*"
		}
	}

	full := p.String()
	if strings.HasPrefix(full, "/") || strings.HasPrefix(full, "(") {
		root = strings.TrimRight(p[:start].String(), "/")
		sub = strings.TrimLeft(p[end:].String(), "/")
		if root == "" {
			root = "/html/body"
		}
		return root, item, sub
	}
	root = strings.TrimRight(p[:start].String(), "> ")
	sub = strings.TrimLeft(p[end:].String(), "> ")
	if root == "" {
		root = "body"
	}
	return root, item, sub
}
