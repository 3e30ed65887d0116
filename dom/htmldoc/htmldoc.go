// Package htmldoc implements dom.Document over a parsed static HTML tree.
//
// Geometry is not computed (there is no layout engine): callers set it per
// node with SetRect / SetGeometry, which is how recorder tests script a
// page that resizes and settles. Queries use cascadia for CSS and
// htmlquery for XPath.
package htmldoc

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
)

// Document is a mutable in-memory page.
type Document struct {
	root  *html.Node
	ids   map[*html.Node]dom.Node
	nodes map[dom.Node]*html.Node
	next  dom.Node

	geom      map[dom.Node]dom.Geometry
	durations map[dom.Node]time.Duration

	url            string
	viewportWidth  int
	viewportHeight int
}

// Option configures a Document.
type Option func(*Document)

// WithURL sets the page URL.
func WithURL(u string) Option { return func(d *Document) { d.url = u } }

// WithViewport sets the viewport size. Default: 1280x800.
func WithViewport(w, h int) Option {
	return func(d *Document) { d.viewportWidth, d.viewportHeight = w, h }
}

// Parse reads HTML from r.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	d := &Document{
		root:           root,
		ids:            make(map[*html.Node]dom.Node),
		nodes:          make(map[dom.Node]*html.Node),
		geom:           make(map[dom.Node]dom.Geometry),
		durations:      make(map[dom.Node]time.Duration),
		url:            "about:blank",
		viewportWidth:  1280,
		viewportHeight: 800,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ParseString parses an HTML string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// MustParse parses s and panics on error. Intended for tests.
func MustParse(s string, opts ...Option) *Document {
	d, err := ParseString(s, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// idOf returns (assigning if needed) the identity of an element.
func (d *Document) idOf(n *html.Node) dom.Node {
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.next++
	d.ids[n] = d.next
	d.nodes[d.next] = n
	return d.next
}

// HTMLNode returns the underlying html.Node, or nil.
func (d *Document) HTMLNode(n dom.Node) *html.Node { return d.nodes[n] }

// Find returns the first element matching a CSS selector, or dom.NoNode.
func (d *Document) Find(selector string) dom.Node {
	all := d.FindAll(selector)
	if len(all) == 0 {
		return dom.NoNode
	}
	return all[0]
}

// FindAll returns every element matching a CSS selector.
func (d *Document) FindAll(selector string) []dom.Node {
	nodes, err := d.Evaluate(dom.CSSQuery(selector))
	if err != nil {
		return nil
	}
	return nodes
}

// Root returns the body element.
func (d *Document) Root() dom.Node {
	if b := findAtom(d.root, atom.Body); b != nil {
		return d.idOf(b)
	}
	return dom.NoNode
}

func (d *Document) IsAttached(n dom.Node) bool {
	hn, ok := d.nodes[n]
	if !ok {
		return false
	}
	for p := hn; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func (d *Document) Parent(n dom.Node) dom.Node {
	hn, ok := d.nodes[n]
	if !ok || hn.Parent == nil || hn.Parent.Type != html.ElementNode {
		return dom.NoNode
	}
	if hn.DataAtom == atom.Body || hn.DataAtom == atom.Html {
		return dom.NoNode
	}
	return d.idOf(hn.Parent)
}

func (d *Document) Children(n dom.Node) []dom.Node {
	hn, ok := d.nodes[n]
	if !ok {
		return nil
	}
	var out []dom.Node
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, d.idOf(c))
		}
	}
	return out
}

func (d *Document) Tag(n dom.Node) string {
	if hn, ok := d.nodes[n]; ok {
		return strings.ToLower(hn.Data)
	}
	return ""
}

func (d *Document) Attr(n dom.Node, name string) (string, bool) {
	hn, ok := d.nodes[n]
	if !ok {
		return "", false
	}
	for _, a := range hn.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (d *Document) Text(n dom.Node) string {
	hn, ok := d.nodes[n]
	if !ok {
		return ""
	}
	var sb strings.Builder
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
	}
	return dom.CollapseSpace(sb.String())
}

// Measure returns the scripted geometry of n. Unscripted nodes measure as
// a zero rectangle that is visible.
func (d *Document) Measure(n dom.Node) (dom.Geometry, error) {
	if !d.IsAttached(n) {
		return dom.Geometry{}, dom.ErrDetached
	}
	if g, ok := d.geom[n]; ok {
		return g, nil
	}
	return dom.Geometry{Opacity: 1, Visibility: "visible", Display: "block"}, nil
}

func (d *Document) Count(q dom.Query) (int, error) {
	nodes, err := d.evaluate(q)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (d *Document) Evaluate(q dom.Query) ([]dom.Node, error) {
	nodes, err := d.evaluate(q)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Node, 0, len(nodes))
	for _, hn := range nodes {
		out = append(out, d.idOf(hn))
	}
	return out, nil
}

func (d *Document) evaluate(q dom.Query) ([]*html.Node, error) {
	switch q.Syntax {
	case dom.XPath:
		nodes, err := htmlquery.QueryAll(d.root, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("htmldoc: xpath %q: %w", q.Expr, err)
		}
		var elems []*html.Node
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				elems = append(elems, n)
			}
		}
		return elems, nil
	default:
		sel, err := cascadia.Compile(q.Expr)
		if err != nil {
			return nil, fmt.Errorf("htmldoc: css %q: %w", q.Expr, err)
		}
		return sel.MatchAll(d.root), nil
	}
}

func (d *Document) RootClasses() []string {
	var out []string
	for _, a := range []atom.Atom{atom.Html, atom.Body} {
		if n := findAtom(d.root, a); n != nil {
			out = append(out, strings.Fields(attr(n, "class"))...)
		}
	}
	return out
}

func (d *Document) Viewport() (int, int) { return d.viewportWidth, d.viewportHeight }

func (d *Document) URL() string { return d.url }

func (d *Document) AnimationDuration(n dom.Node) time.Duration { return d.durations[n] }

// SetRect scripts the rectangle of n, keeping the rest of its geometry.
func (d *Document) SetRect(n dom.Node, r dom.Rect) {
	g, ok := d.geom[n]
	if !ok {
		g = dom.Geometry{Opacity: 1, Visibility: "visible", Display: "block"}
	}
	g.Rect = r
	g.ScrollHeight, g.ScrollWidth = r.Height, r.Width
	d.geom[n] = g
}

// SetGeometry scripts the full geometry of n.
func (d *Document) SetGeometry(n dom.Node, g dom.Geometry) { d.geom[n] = g }

// SetAnimationDuration scripts the declared transition/animation duration.
func (d *Document) SetAnimationDuration(n dom.Node, dur time.Duration) { d.durations[n] = dur }

// SetAttr sets an attribute and returns the mutation a MutationObserver
// would have reported.
func (d *Document) SetAttr(n dom.Node, name, value string) dom.Mutation {
	hn := d.nodes[n]
	old := ""
	if hn != nil {
		found := false
		for i, a := range hn.Attr {
			if a.Namespace == "" && a.Key == name {
				old = a.Val
				hn.Attr[i].Val = value
				found = true
				break
			}
		}
		if !found {
			hn.Attr = append(hn.Attr, html.Attribute{Key: name, Val: value})
		}
	}
	return dom.Mutation{Kind: dom.AttributeChange, Target: n, AttributeName: name, OldValue: old}
}

// SetRootClass replaces the body class attribute.
func (d *Document) SetRootClass(value string) dom.Mutation {
	return d.SetAttr(d.Root(), "class", value)
}

// Append parses fragment in the context of parent, appends the resulting
// elements and returns the child-list mutation.
func (d *Document) Append(parent dom.Node, fragment string) (dom.Mutation, error) {
	hp := d.nodes[parent]
	if hp == nil {
		return dom.Mutation{}, fmt.Errorf("htmldoc: append: unknown parent %d", parent)
	}
	frag, err := html.ParseFragment(strings.NewReader(fragment), hp)
	if err != nil {
		return dom.Mutation{}, fmt.Errorf("htmldoc: append: %w", err)
	}
	m := dom.Mutation{Kind: dom.ChildListChange, Target: parent}
	for _, fn := range frag {
		hp.AppendChild(fn)
		if fn.Type == html.ElementNode {
			m.Added = append(m.Added, d.idOf(fn))
		}
	}
	return m, nil
}

// Remove detaches n from the tree. Its identity stays known but
// IsAttached reports false.
func (d *Document) Remove(n dom.Node) {
	if hn := d.nodes[n]; hn != nil && hn.Parent != nil {
		hn.Parent.RemoveChild(hn)
	}
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findAtom(c, a); f != nil {
			return f
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
