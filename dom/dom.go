// Package dom defines the document-model contract consumed by the recorder.
//
// The host supplies a Document: elements are referenced by opaque Node
// identities, never by pointers, so nothing in flowcapture keeps a node
// alive. Adapters live in dom/htmldoc (static HTML) and browser (Chrome).
package dom

import (
	"errors"
	"strings"
	"time"
)

// Node is an opaque, comparable element identity issued by a Document.
type Node uint64

// NoNode is the zero identity. Parent returns it at the page root.
const NoNode Node = 0

// ErrDetached is returned by Measure when the node left the document.
var ErrDetached = errors.New("dom: node detached")

// Rect is a bounding client rectangle in CSS pixels.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width*height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// Geometry is one sample of a node's layout and visibility.
type Geometry struct {
	Rect         Rect    `json:"rect"`
	ScrollHeight float64 `json:"scroll_height"`
	ScrollWidth  float64 `json:"scroll_width"`
	Transform    string  `json:"transform,omitempty"`
	Opacity      float64 `json:"opacity"`
	Visibility   string  `json:"visibility,omitempty"`
	Display      string  `json:"display,omitempty"`
}

// MutationKind is the type of DOM mutation observed.
type MutationKind string

const (
	ChildListChange MutationKind = "childList"
	AttributeChange MutationKind = "attributes"
)

// Mutation is a single observed DOM mutation.
type Mutation struct {
	Kind          MutationKind `json:"kind"`
	Target        Node         `json:"target"`
	Added         []Node       `json:"added,omitempty"`
	AttributeName string       `json:"attribute_name,omitempty"`
	OldValue      string       `json:"old_value,omitempty"`
}

// Syntax tells a Document how to evaluate a Query.
type Syntax int

const (
	CSS Syntax = iota
	XPath
)

func (s Syntax) String() string {
	if s == XPath {
		return "xpath"
	}
	return "css"
}

// Query is an expression in a given syntax.
type Query struct {
	Syntax Syntax
	Expr   string
}

// CSSQuery builds a CSS Query.
func CSSQuery(expr string) Query { return Query{Syntax: CSS, Expr: expr} }

// XPathQuery builds an XPath Query.
func XPathQuery(expr string) Query { return Query{Syntax: XPath, Expr: expr} }

// Tree gives read access to the element tree.
type Tree interface {
	// Root returns the page root sentinel (the body element).
	Root() Node
	IsAttached(n Node) bool
	// Parent returns NoNode for the root or a detached node.
	Parent(n Node) Node
	// Children returns element children in document order.
	Children(n Node) []Node
	// Tag returns the lower-case tag name.
	Tag(n Node) string
	Attr(n Node, name string) (string, bool)
	// Text returns the node's own text (direct text children), whitespace collapsed.
	Text(n Node) string
}

// Document is the full adapter contract.
type Document interface {
	Tree
	Measure(n Node) (Geometry, error)
	// Count returns how many elements match q document-wide.
	Count(q Query) (int, error)
	Evaluate(q Query) ([]Node, error)
	// RootClasses returns the page's top-level class list (html and body).
	RootClasses() []string
	Viewport() (width, height int)
	URL() string
	// AnimationDuration is the longest declared transition/animation
	// duration (including delay) on n.
	AnimationDuration(n Node) time.Duration
}

// Classes splits a class attribute into tokens.
func Classes(t Tree, n Node) []string {
	v, _ := t.Attr(n, "class")
	return strings.Fields(v)
}

// CollapseSpace trims s and collapses internal whitespace runs.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SiblingIndex returns the 1-based position of n among its parent's
// element children, counting only same-tag siblings when sameTag is set.
func SiblingIndex(t Tree, n Node, sameTag bool) int {
	p := t.Parent(n)
	if p == NoNode {
		return 1
	}
	tag := t.Tag(n)
	idx := 0
	for _, c := range t.Children(p) {
		if sameTag && t.Tag(c) != tag {
			continue
		}
		idx++
		if c == n {
			return idx
		}
	}
	return 1
}
