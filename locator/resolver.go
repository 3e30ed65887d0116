package locator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
)

// Config tunes the strategy chain.
type Config struct {
	// AncestorDepth bounds ancestor walks. Default: 4.
	AncestorDepth int `yaml:"ancestor_depth"`

	// MaxClassCombo is the largest class combination tried. Default: 3.
	MaxClassCombo int `yaml:"max_class_combo"`

	// MaxClasses caps the meaningful classes considered per node. Default: 6.
	MaxClasses int `yaml:"max_classes"`

	// ShortText is the rune length under which text matches exactly. Default: 40.
	ShortText int `yaml:"short_text"`

	// TextPrefix is the prefix length used for "contains" text matches. Default: 30.
	TextPrefix int `yaml:"text_prefix"`

	// MaxTextLocator caps the text-content fallback length. Default: 60.
	MaxTextLocator int `yaml:"max_text_locator"`

	// BubbleDepth bounds the interactive-ancestor search. Default: 5.
	BubbleDepth int `yaml:"bubble_depth"`

	// SweepEvery evicts detached cache entries every N lookups. Default: 64.
	SweepEvery int `yaml:"sweep_every"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.AncestorDepth <= 0 {
		c.AncestorDepth = 4
	}
	if c.MaxClassCombo <= 0 {
		c.MaxClassCombo = 3
	}
	if c.MaxClasses <= 0 {
		c.MaxClasses = 6
	}
	if c.ShortText <= 0 {
		c.ShortText = 40
	}
	if c.TextPrefix <= 0 {
		c.TextPrefix = 30
	}
	if c.MaxTextLocator <= 0 {
		c.MaxTextLocator = 60
	}
	if c.BubbleDepth <= 0 {
		c.BubbleDepth = 5
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Resolver synthesizes locators against one document. It is not safe for
// concurrent use; callers drive it from a single logical thread.
type Resolver struct {
	doc   dom.Document
	cfg   Config
	cache *cache
}

// New creates a Resolver for doc.
func New(doc dom.Document, cfg Config) *Resolver {
	cfg.defaults()
	return &Resolver{doc: doc, cfg: cfg, cache: newCache(doc, cfg.SweepEvery)}
}

// Document returns the document the resolver reads.
func (r *Resolver) Document() dom.Document { return r.doc }

// ResolvePrimary returns the best locator for n, or nil when n is not
// attached. The result is Advisory when no strategy proved uniqueness.
func (r *Resolver) ResolvePrimary(n dom.Node) *Locator {
	if n == dom.NoNode || !r.doc.IsAttached(n) {
		return nil
	}
	if e := r.cache.get(n); e != nil {
		if e.primary != nil {
			return e.primary
		}
		if e.candidates != nil {
			return e.candidates.Primary
		}
	}

	target := r.bubble(n)
	var loc *Locator
	for _, s := range chain {
		if s.fallback {
			continue
		}
		if loc = r.try(s, target); loc != nil {
			break
		}
	}
	if loc == nil {
		for _, s := range chain {
			if !s.fallback {
				continue
			}
			if loc = r.try(s, target); loc != nil {
				break
			}
		}
	}
	if loc == nil {
		loc = r.bestEffort(target)
	}
	r.cache.entry(n).primary = loc
	return loc
}

// ResolveCandidates runs every strategy and returns the successes ranked
// by specificity. Fallback-only kinds rank after all others.
func (r *Resolver) ResolveCandidates(n dom.Node) *Candidates {
	if n == dom.NoNode || !r.doc.IsAttached(n) {
		return nil
	}
	if e := r.cache.get(n); e != nil && e.candidates != nil {
		return e.candidates
	}

	target := r.bubble(n)
	var found []Locator
	seen := make(map[string]bool)
	for _, s := range chain {
		loc := r.try(s, target)
		if loc == nil || seen[loc.Expression] {
			continue
		}
		seen[loc.Expression] = true
		found = append(found, *loc)
	}
	if len(found) == 0 {
		found = append(found, *r.bestEffort(target))
	}

	c := &Candidates{Primary: &found[0], Fallbacks: found[1:]}
	for _, l := range found {
		c.Strategies = append(c.Strategies, l.Kind)
	}
	e := r.cache.entry(n)
	e.candidates = c
	e.primary = c.Primary
	return c
}

// IsUniqueInDocument reports whether expr matches exactly one element.
// Advisory shorthand expressions are trusted.
func (r *Resolver) IsUniqueInDocument(expr string) bool {
	if strings.HasPrefix(expr, AriaPrefix) || strings.HasPrefix(expr, TextPrefix) {
		return true
	}
	return r.count(queryFor(expr)) == 1
}

// IsUnique reports whether l matches exactly one element.
func (r *Resolver) IsUnique(l Locator) bool {
	q, ok := l.Query()
	if !ok {
		return true
	}
	return r.count(q) == 1
}

// Target returns the node the strategies describe for n: its nearest
// interactive ancestor-or-self.
func (r *Resolver) Target(n dom.Node) dom.Node { return r.bubble(n) }

// ClearCache drops every memoized result.
func (r *Resolver) ClearCache() { r.cache.clear() }

// CacheLen returns the number of memoized nodes.
func (r *Resolver) CacheLen() int { return r.cache.len() }

// try runs one strategy in isolation; a panic counts as a miss.
func (r *Resolver) try(s strategy, n dom.Node) (loc *Locator) {
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Debug("locator: strategy failed", "strategy", s.kind, "error", fmt.Sprint(rec))
			loc = nil
		}
	}()
	return s.run(r, n)
}

func (r *Resolver) count(q dom.Query) int {
	n, err := r.doc.Count(q)
	if err != nil {
		r.cfg.Logger.Debug("locator: query failed", "query", q.Expr, "error", err)
		return -1
	}
	return n
}

// matchesOnly reports whether q selects target and nothing else.
func (r *Resolver) matchesOnly(q dom.Query, target dom.Node) bool {
	nodes, err := r.doc.Evaluate(q)
	if err != nil {
		r.cfg.Logger.Debug("locator: query failed", "query", q.Expr, "error", err)
		return false
	}
	return len(nodes) == 1 && nodes[0] == target
}

var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"summary": true, "option": true, "label": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "menuitem": true, "menuitemcheckbox": true,
	"menuitemradio": true, "tab": true, "checkbox": true, "radio": true,
	"option": true, "switch": true, "treeitem": true, "combobox": true,
}

func (r *Resolver) interactive(n dom.Node) bool {
	if interactiveTags[r.doc.Tag(n)] {
		return true
	}
	if role, ok := r.doc.Attr(n, "role"); ok && interactiveRoles[strings.ToLower(role)] {
		return true
	}
	if _, ok := r.doc.Attr(n, "onclick"); ok {
		return true
	}
	if ti, ok := r.doc.Attr(n, "tabindex"); ok && !strings.HasPrefix(strings.TrimSpace(ti), "-") {
		return true
	}
	return false
}

// bubble returns the nearest interactive ancestor-or-self of n within
// BubbleDepth, or n itself when there is none.
func (r *Resolver) bubble(n dom.Node) dom.Node {
	root := r.doc.Root()
	cur := n
	for depth := 0; depth <= r.cfg.BubbleDepth && cur != dom.NoNode; depth++ {
		if r.interactive(cur) {
			return cur
		}
		if cur == root {
			break
		}
		cur = r.doc.Parent(cur)
	}
	return n
}

// bestEffort builds an absolute nth-of-type path from the page root.
func (r *Resolver) bestEffort(n dom.Node) *Locator {
	root := r.doc.Root()
	var segs []string
	for cur := n; cur != dom.NoNode && cur != root; cur = r.doc.Parent(cur) {
		seg := r.doc.Tag(cur)
		if r.sameTagSiblings(cur) > 1 {
			seg += fmt.Sprintf(":nth-of-type(%d)", dom.SiblingIndex(r.doc, cur, true))
		}
		segs = append(segs, seg)
	}
	segs = append(segs, "body")
	reverse(segs)
	expr := strings.Join(segs, " > ")
	return &Locator{
		Expression: expr,
		Kind:       KindAncestorPath,
		Advisory:   r.count(dom.CSSQuery(expr)) != 1,
	}
}

func (r *Resolver) sameTagSiblings(n dom.Node) int {
	p := r.doc.Parent(n)
	if p == dom.NoNode {
		return 1
	}
	tag := r.doc.Tag(n)
	count := 0
	for _, c := range r.doc.Children(p) {
		if r.doc.Tag(c) == tag {
			count++
		}
	}
	return count
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
