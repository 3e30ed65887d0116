package locator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
)

type strategy struct {
	kind Kind
	// fallback strategies are promoted to primary only when nothing else
	// succeeded.
	fallback bool
	run      func(r *Resolver, n dom.Node) *Locator
}

// chain lists strategies by decreasing specificity, fallbacks last.
var chain = []strategy{
	{kind: KindID, run: (*Resolver).byID},
	{kind: KindPathPredicate, run: (*Resolver).byPathPredicate},
	{kind: KindAriaLabel, run: (*Resolver).byAriaLabel},
	{kind: KindAttribute, run: (*Resolver).byAttribute},
	{kind: KindClassCombination, run: (*Resolver).byClassCombination},
	{kind: KindAncestorPath, run: (*Resolver).byAncestorPath},
	{kind: KindPositionalIndex, run: (*Resolver).byPosition},
	{kind: KindTextContent, fallback: true, run: (*Resolver).byText},
	{kind: KindImageAlt, fallback: true, run: (*Resolver).byImageAlt},
	{kind: KindHeadingContext, fallback: true, run: (*Resolver).byHeading},
}

func (r *Resolver) attr(n dom.Node, name string) string {
	v, _ := r.doc.Attr(n, name)
	return strings.TrimSpace(v)
}

// uniqueID returns n's id when it is unique in the document.
func (r *Resolver) uniqueID(n dom.Node) string {
	id := r.attr(n, "id")
	if id == "" {
		return ""
	}
	if r.count(dom.XPathQuery("//*[@id="+xpathLiteral(id)+"]")) != 1 {
		return ""
	}
	return id
}

func (r *Resolver) classes(n dom.Node) []string {
	cs := MeaningfulClasses(dom.Classes(r.doc, n))
	if len(cs) > r.cfg.MaxClasses {
		cs = cs[:r.cfg.MaxClasses]
	}
	return cs
}

func (r *Resolver) byID(n dom.Node) *Locator {
	id := r.attr(n, "id")
	if id == "" {
		return nil
	}
	if !r.matchesOnly(dom.XPathQuery("//*[@id="+xpathLiteral(id)+"]"), n) {
		return nil
	}
	return &Locator{Expression: "#" + cssIdent(id), Kind: KindID}
}

type predicate struct {
	expr   string
	weight int
}

var predicateAttrs = []struct {
	name   string
	weight int
}{
	{"aria-label", 10},
	{"name", 7},
	{"title", 6},
	{"placeholder", 6},
	{"role", 3},
	{"type", 2},
}

// predicates returns the XPath predicates describing n, heaviest first.
func (r *Resolver) predicates(n dom.Node) []predicate {
	var ps []predicate
	for _, a := range predicateAttrs {
		if v, ok := r.doc.Attr(n, a.name); ok && strings.TrimSpace(v) != "" {
			ps = append(ps, predicate{expr: "@" + a.name + "=" + xpathLiteral(v), weight: a.weight})
		}
	}
	// Text predicates only when the text is all in n's own text nodes,
	// so normalize-space(.) sees the same string.
	if own := r.doc.Text(n); own != "" && own == r.fullText(n) {
		if utf8.RuneCountInString(own) <= r.cfg.ShortText {
			ps = append(ps, predicate{expr: "normalize-space(.)=" + xpathLiteral(own), weight: 8})
		} else {
			prefix := truncateRunes(own, r.cfg.TextPrefix)
			ps = append(ps, predicate{expr: "contains(normalize-space(.), " + xpathLiteral(prefix) + ")", weight: 4})
		}
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].weight > ps[j].weight })
	return ps
}

func (r *Resolver) byPathPredicate(n dom.Node) *Locator {
	preds := r.predicates(n)
	if len(preds) == 0 {
		return nil
	}
	tag := r.doc.Tag(n)
	try := func(scope, hint string, ps ...predicate) *Locator {
		parts := make([]string, len(ps))
		for i, p := range ps {
			parts[i] = p.expr
		}
		expr := scope + "//" + tag + "[" + strings.Join(parts, " and ") + "]"
		if !r.matchesOnly(dom.XPathQuery(expr), n) {
			return nil
		}
		return &Locator{Expression: expr, Kind: KindPathPredicate, ScopeHint: hint}
	}
	search := func(scope, hint string) *Locator {
		for _, p := range preds {
			if l := try(scope, hint, p); l != nil {
				return l
			}
		}
		for i := 0; i < len(preds); i++ {
			for j := i + 1; j < len(preds); j++ {
				if l := try(scope, hint, preds[i], preds[j]); l != nil {
					return l
				}
			}
		}
		return nil
	}

	if l := search("", ""); l != nil {
		return l
	}
	if scope, hint := r.scopeAncestor(n); scope != "" {
		return search(scope, hint)
	}
	return nil
}

// scopeAncestor finds the nearest ancestor with a unique id, else the
// nearest with a meaningful class, and returns its XPath and CSS hint.
func (r *Resolver) scopeAncestor(n dom.Node) (xpath, hint string) {
	root := r.doc.Root()
	walk := func(visit func(a dom.Node) bool) {
		cur := r.doc.Parent(n)
		for depth := 0; depth < r.cfg.AncestorDepth && cur != dom.NoNode; depth++ {
			if visit(cur) || cur == root {
				return
			}
			cur = r.doc.Parent(cur)
		}
	}
	walk(func(a dom.Node) bool {
		if id := r.uniqueID(a); id != "" {
			xpath, hint = "//*[@id="+xpathLiteral(id)+"]", "#"+cssIdent(id)
			return true
		}
		return false
	})
	if xpath != "" {
		return xpath, hint
	}
	walk(func(a dom.Node) bool {
		if cs := r.classes(a); len(cs) > 0 {
			tag := r.doc.Tag(a)
			xpath, hint = "//"+tag+"["+classPredicate(cs[0])+"]", tag+"."+cssIdent(cs[0])
			return true
		}
		return false
	})
	return xpath, hint
}

func (r *Resolver) byAriaLabel(n dom.Node) *Locator {
	label, ok := r.doc.Attr(n, "aria-label")
	if !ok || strings.TrimSpace(label) == "" {
		return nil
	}
	if !r.matchesOnly(dom.CSSQuery("[aria-label="+cssString(label)+"]"), n) {
		return nil
	}
	return &Locator{Expression: AriaPrefix + label, Kind: KindAriaLabel}
}

var stableAttrs = []string{
	"data-testid", "data-test-id", "data-test", "data-cy", "data-qa",
	"data-automation-id", "data-component", "name", "title",
}

func (r *Resolver) byAttribute(n dom.Node) *Locator {
	tag := r.doc.Tag(n)
	for _, a := range stableAttrs {
		v, ok := r.doc.Attr(n, a)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		expr := tag + "[" + a + "=" + cssString(v) + "]"
		if r.matchesOnly(dom.CSSQuery(expr), n) {
			return &Locator{Expression: expr, Kind: KindAttribute}
		}
	}
	if tag != "a" {
		return nil
	}
	href := r.attr(n, "href")
	u, err := url.Parse(href)
	if href == "" || err != nil || u.Path == "" || u.Path == "/" {
		return nil
	}
	expr := "a[href*=" + cssString(u.Path) + "]"
	if r.matchesOnly(dom.CSSQuery(expr), n) {
		return &Locator{Expression: expr, Kind: KindAttribute}
	}
	return nil
}

func (r *Resolver) byClassCombination(n dom.Node) *Locator {
	cs := r.classes(n)
	if len(cs) == 0 {
		return nil
	}
	tag := r.doc.Tag(n)
	maxK := min(r.cfg.MaxClassCombo, len(cs))
	for k := 1; k <= maxK; k++ {
		var found *Locator
		combinations(len(cs), k, func(idx []int) bool {
			var sb strings.Builder
			sb.WriteString(tag)
			for _, i := range idx {
				sb.WriteByte('.')
				sb.WriteString(cssIdent(cs[i]))
			}
			if r.matchesOnly(dom.CSSQuery(sb.String()), n) {
				found = &Locator{Expression: sb.String(), Kind: KindClassCombination}
				return true
			}
			return false
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// combinations calls fn with every k-subset of [0,n) in lexicographic
// order until fn returns true.
func combinations(n, k int, fn func([]int) bool) {
	idx := make([]int, k)
	var rec func(start, depth int) bool
	rec = func(start, depth int) bool {
		if depth == k {
			return fn(idx)
		}
		for i := start; i <= n-(k-depth); i++ {
			idx[depth] = i
			if rec(i+1, depth+1) {
				return true
			}
		}
		return false
	}
	rec(0, 0)
}

// segment renders n as tag[.class][:nth-of-type(k)], preferring a class
// that no same-tag sibling shares over a positional index.
func (r *Resolver) segment(n dom.Node) string {
	tag := r.doc.Tag(n)
	cs := r.classes(n)
	base := tag
	if len(cs) > 0 {
		base += "." + cssIdent(cs[0])
	}
	p := r.doc.Parent(n)
	if p == dom.NoNode {
		return base
	}
	var rivals []dom.Node
	for _, c := range r.doc.Children(p) {
		if c != n && r.doc.Tag(c) == tag {
			rivals = append(rivals, c)
		}
	}
	if len(rivals) == 0 {
		return base
	}
	for _, c := range cs {
		shared := false
		for _, s := range rivals {
			if hasClass(r.doc, s, c) {
				shared = true
				break
			}
		}
		if !shared {
			return tag + "." + cssIdent(c)
		}
	}
	return base + fmt.Sprintf(":nth-of-type(%d)", dom.SiblingIndex(r.doc, n, true))
}

func (r *Resolver) byAncestorPath(n dom.Node) *Locator {
	root := r.doc.Root()
	var segs []string
	cur := n
	for depth := 0; depth < r.cfg.AncestorDepth && cur != dom.NoNode; depth++ {
		segs = append([]string{r.segment(cur)}, segs...)
		expr := strings.Join(segs, " > ")
		if r.matchesOnly(dom.CSSQuery(expr), n) {
			return &Locator{Expression: expr, Kind: KindAncestorPath}
		}
		if cur == root {
			break
		}
		parent := r.doc.Parent(cur)
		if parent == dom.NoNode {
			break
		}
		if id := r.uniqueID(parent); id != "" {
			expr = "#" + cssIdent(id) + " > " + expr
			if r.matchesOnly(dom.CSSQuery(expr), n) {
				return &Locator{Expression: expr, Kind: KindAncestorPath, ScopeHint: "#" + cssIdent(id)}
			}
			break
		}
		cur = parent
	}
	return nil
}

// scopeSelector returns a CSS selector for an identified or classed node.
func (r *Resolver) scopeSelector(n dom.Node) string {
	if id := r.uniqueID(n); id != "" {
		return "#" + cssIdent(id)
	}
	if cs := r.classes(n); len(cs) > 0 {
		return r.doc.Tag(n) + "." + cssIdent(cs[0])
	}
	return ""
}

func (r *Resolver) byPosition(n dom.Node) *Locator {
	p := r.doc.Parent(n)
	if p == dom.NoNode || len(r.doc.Children(p)) < 2 {
		return nil
	}
	leaf := fmt.Sprintf("%s:nth-child(%d)", r.doc.Tag(n), dom.SiblingIndex(r.doc, n, false))
	if scope := r.scopeSelector(p); scope != "" {
		expr := scope + " > " + leaf
		if r.matchesOnly(dom.CSSQuery(expr), n) {
			return &Locator{Expression: expr, Kind: KindPositionalIndex, ScopeHint: scope}
		}
	}
	gp := r.doc.Parent(p)
	if gp == dom.NoNode {
		return nil
	}
	if scope := r.scopeSelector(gp); scope != "" {
		expr := scope + " > " + r.segment(p) + " > " + leaf
		if r.matchesOnly(dom.CSSQuery(expr), n) {
			return &Locator{Expression: expr, Kind: KindPositionalIndex, ScopeHint: scope}
		}
	}
	return nil
}

var stableTextTags = map[string]bool{
	"a": true, "button": true, "label": true, "summary": true, "legend": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "td": true, "th": true, "option": true, "dt": true, "dd": true,
	"span": true, "strong": true, "em": true, "p": true,
}

func (r *Resolver) byText(n dom.Node) *Locator {
	if !stableTextTags[r.doc.Tag(n)] {
		return nil
	}
	text := r.fullText(n)
	if text == "" || utf8.RuneCountInString(text) > r.cfg.MaxTextLocator {
		return nil
	}
	return &Locator{Expression: TextPrefix + text, Kind: KindTextContent}
}

func (r *Resolver) byImageAlt(n dom.Node) *Locator {
	img := r.findDescendant(n, 3, func(c dom.Node) bool {
		return r.doc.Tag(c) == "img" && r.attr(c, "alt") != ""
	})
	if img == dom.NoNode {
		return nil
	}
	alt, _ := r.doc.Attr(img, "alt")
	expr := "img[alt=" + cssString(alt) + "]"
	if r.count(dom.CSSQuery(expr)) != 1 {
		return nil
	}
	return &Locator{Expression: expr, Kind: KindImageAlt}
}

func (r *Resolver) byHeading(n dom.Node) *Locator {
	root := r.doc.Root()
	leaf := "//" + r.doc.Tag(n)
	if cs := r.classes(n); len(cs) > 0 {
		leaf += "[" + classPredicate(cs[0]) + "]"
	}
	cur := r.doc.Parent(n)
	for depth := 0; depth < r.cfg.AncestorDepth+2 && cur != dom.NoNode; depth++ {
		if h, text := r.heading(cur, n); h != dom.NoNode {
			expr := "//" + r.doc.Tag(cur) + "[.//" + r.doc.Tag(h) + "[normalize-space(.)=" + xpathLiteral(text) + "]]" + leaf
			if r.matchesOnly(dom.XPathQuery(expr), n) {
				return &Locator{Expression: expr, Kind: KindHeadingContext, ScopeHint: text}
			}
		}
		if cur == root {
			break
		}
		cur = r.doc.Parent(cur)
	}
	return nil
}

func isHeading(t dom.Tree, n dom.Node) bool {
	switch t.Tag(n) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	role, _ := t.Attr(n, "role")
	return role == "heading"
}

// heading returns the first heading inside container, outside skip.
func (r *Resolver) heading(container, skip dom.Node) (dom.Node, string) {
	queue := []dom.Node{container}
	for visited := 0; len(queue) > 0 && visited < 200; visited++ {
		cur := queue[0]
		queue = queue[1:]
		if cur == skip {
			continue
		}
		if cur != container && isHeading(r.doc, cur) {
			text := r.fullText(cur)
			// Only exact matches are usable; the heading must not nest
			// text-bearing elements.
			if text != "" && text == r.doc.Text(cur) && utf8.RuneCountInString(text) <= 80 {
				return cur, text
			}
		}
		queue = append(queue, r.doc.Children(cur)...)
	}
	return dom.NoNode, ""
}

// findDescendant searches n and its descendants down to depth.
func (r *Resolver) findDescendant(n dom.Node, depth int, match func(dom.Node) bool) dom.Node {
	if match(n) {
		return n
	}
	if depth == 0 {
		return dom.NoNode
	}
	for _, c := range r.doc.Children(n) {
		if f := r.findDescendant(c, depth-1, match); f != dom.NoNode {
			return f
		}
	}
	return dom.NoNode
}

// fullText approximates the element's rendered text: own text then each
// child's, collapsed.
func (r *Resolver) fullText(n dom.Node) string {
	var parts []string
	budget := 200
	var walk func(dom.Node)
	walk = func(cur dom.Node) {
		if budget <= 0 {
			return
		}
		budget--
		if t := r.doc.Text(cur); t != "" {
			parts = append(parts, t)
		}
		for _, c := range r.doc.Children(cur) {
			walk(c)
		}
	}
	walk(n)
	return dom.CollapseSpace(strings.Join(parts, " "))
}

func hasClass(t dom.Tree, n dom.Node, class string) bool {
	for _, c := range dom.Classes(t, n) {
		if c == class {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
