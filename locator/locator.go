// Package locator synthesizes replayable element locators.
//
// A Resolver runs an ordered chain of strategies against a dom.Document and
// returns the first locator that matches exactly the target node, plus the
// other successful candidates as ranked fallbacks.
package locator

import (
	"strings"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
)

// Kind is the strategy that produced a Locator.
type Kind string

const (
	KindID               Kind = "id"
	KindPathPredicate    Kind = "path_predicate"
	KindAriaLabel        Kind = "aria_label"
	KindAttribute        Kind = "attribute"
	KindClassCombination Kind = "class_combination"
	KindAncestorPath     Kind = "ancestor_path"
	KindPositionalIndex  Kind = "positional_index"
	KindTextContent      Kind = "text_content"
	KindImageAlt         Kind = "image_alt"
	KindHeadingContext   Kind = "heading_context"
)

// Shorthand prefixes for advisory locators that are not CSS or XPath.
const (
	AriaPrefix = "aria/"
	TextPrefix = "text/"
)

// Locator identifies one document node.
type Locator struct {
	Expression string `json:"expression"`
	Kind       Kind   `json:"strategy"`
	ScopeHint  string `json:"scope_hint,omitempty"`
	// Advisory is set when no strategy proved uniqueness; replay must treat
	// the expression as a hint.
	Advisory bool `json:"advisory,omitempty"`
}

// Structural reports whether the expression is CSS or XPath.
func (l Locator) Structural() bool {
	return l.Kind != KindAriaLabel && l.Kind != KindTextContent
}

// Query returns the expression as a dom.Query. Shorthand locators return
// their attribute-equality form for aria labels and false for text.
func (l Locator) Query() (dom.Query, bool) {
	switch l.Kind {
	case KindPathPredicate, KindHeadingContext:
		return dom.XPathQuery(l.Expression), true
	case KindAriaLabel:
		label := strings.TrimPrefix(l.Expression, AriaPrefix)
		return dom.CSSQuery("[aria-label=" + cssString(label) + "]"), true
	case KindTextContent:
		return dom.Query{}, false
	default:
		return queryFor(l.Expression), true
	}
}

// Candidates is the ranked output of ResolveCandidates.
type Candidates struct {
	Primary    *Locator  `json:"primary"`
	Fallbacks  []Locator `json:"fallbacks"`
	Strategies []Kind    `json:"strategies"`
}

// All returns the primary followed by the fallbacks.
func (c *Candidates) All() []Locator {
	if c == nil || c.Primary == nil {
		return nil
	}
	return append([]Locator{*c.Primary}, c.Fallbacks...)
}

// queryFor guesses the syntax of a raw expression.
func queryFor(expr string) dom.Query {
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(") {
		return dom.XPathQuery(expr)
	}
	return dom.CSSQuery(expr)
}
