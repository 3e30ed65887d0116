package interpret

import (
	"sort"
	"strings"

	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/step"
)

// CollectionPattern groups clicks whose locators differ only by position.
type CollectionPattern struct {
	NormalizedLocator string   `json:"normalized_locator"`
	ItemCount         int      `json:"item_count"`
	OriginalLocators  []string `json:"original_locators"`
	Steps             []int    `json:"steps"`
	DominantIntent    Intent   `json:"dominant_intent,omitempty"`
	IsConsistent      bool     `json:"is_consistent"`
}

// NormalizeLocator strips positional index terms. Quoted literals are left
// untouched.
func NormalizeLocator(expr string) string {
	return normalized(expr).String()
}

func normalized(expr string) locator.Path {
	return locator.Tokenize(expr).Without(locator.TokenIndex)
}

// DetectCollections groups click steps by normalized locator. A group is
// kept only when it holds more than one distinct original locator.
func DetectCollections(steps []step.Step) []CollectionPattern {
	var order []string
	groups := make(map[string]*CollectionPattern)
	originals := make(map[string]map[string]bool)

	for i := range steps {
		s := &steps[i]
		if !s.Trigger.Type.ClickLike() || s.Trigger.Locator == nil {
			continue
		}
		expr := s.Trigger.Locator.Expression
		norm := normalized(expr)
		key := norm.Key()
		g, ok := groups[key]
		if !ok {
			g = &CollectionPattern{NormalizedLocator: norm.String()}
			groups[key] = g
			originals[key] = make(map[string]bool)
			order = append(order, key)
		}
		g.Steps = append(g.Steps, i)
		originals[key][expr] = true
	}

	var out []CollectionPattern
	for _, key := range order {
		if len(originals[key]) < 2 {
			continue
		}
		g := groups[key]
		for expr := range originals[key] {
			g.OriginalLocators = append(g.OriginalLocators, expr)
		}
		sort.Strings(g.OriginalLocators)
		g.ItemCount = len(g.OriginalLocators)
		out = append(out, *g)
	}
	return out
}

// SplitSelector splits a collection selector into the container and the
// repeated item at its last top-level segment.
func SplitSelector(sel string) (root, item string) {
	sel = strings.TrimSpace(sel)
	p := locator.Tokenize(sel)
	cut := p.Last(locator.TokenSep)
	if strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(") {
		if cut <= 0 {
			return "/html/body", sel
		}
		return p[:cut].String(), p[cut+1:].String()
	}
	if cut < 0 {
		return "body", sel
	}
	return p[:cut].String(), p[cut+1:].String()
}
