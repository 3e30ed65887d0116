package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
)

// Document is the live tab seen through the dom.Document contract. Node
// identities come from the in-page registry, so no attribute is ever
// written to the recorded page.
type Document struct {
	page    *rod.Page
	timeout time.Duration
	logger  *slog.Logger
}

var _ dom.Document = (*Document)(nil)

// NewDocument wraps the tab. Every call is bounded by timeout (default 2s).
func NewDocument(t *Tab, timeout time.Duration, logger *slog.Logger) *Document {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{page: t.Page, timeout: timeout, logger: logger}
}

// call runs fn from the registry with args and decodes the JSON it returns
// into out.
func (d *Document) call(out any, fn string, args ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	params := ""
	for i := range args {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("a%d", i)
	}
	js := fmt.Sprintf(`(%s) => JSON.stringify(window.__flowcapture ? window.__flowcapture.%s(%s) : null)`, params, fn, params)

	res, err := d.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("browser: %s: %w", fn, err)
	}
	raw := res.Value.Str()
	if raw == "" || raw == "null" {
		return errNull
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("browser: %s: decode: %w", fn, err)
	}
	return nil
}

var errNull = errors.New("browser: null result")

// quiet logs a failed tree lookup. Tree methods have no error return.
func (d *Document) quiet(fn string, err error) {
	if err != nil && err != errNull {
		d.logger.Debug("browser: document call failed", "fn", fn, "error", err)
	}
}

func (d *Document) Root() dom.Node {
	var id uint64
	d.quiet("root", d.call(&id, "root"))
	return dom.Node(id)
}

func (d *Document) IsAttached(n dom.Node) bool {
	if n == dom.NoNode {
		return false
	}
	var ok bool
	d.quiet("attached", d.call(&ok, "attached", uint64(n)))
	return ok
}

func (d *Document) Parent(n dom.Node) dom.Node {
	var id uint64
	d.quiet("parent", d.call(&id, "parent", uint64(n)))
	return dom.Node(id)
}

func (d *Document) Children(n dom.Node) []dom.Node {
	var ids []uint64
	d.quiet("children", d.call(&ids, "children", uint64(n)))
	return toNodes(ids)
}

func (d *Document) Tag(n dom.Node) string {
	var tag string
	d.quiet("tag", d.call(&tag, "tag", uint64(n)))
	return tag
}

func (d *Document) Attr(n dom.Node, name string) (string, bool) {
	var v string
	err := d.call(&v, "attr", uint64(n), name)
	d.quiet("attr", err)
	return v, err == nil
}

func (d *Document) Text(n dom.Node) string {
	var s string
	d.quiet("text", d.call(&s, "text", uint64(n)))
	return dom.CollapseSpace(s)
}

func (d *Document) Measure(n dom.Node) (dom.Geometry, error) {
	var g dom.Geometry
	err := d.call(&g, "measure", uint64(n))
	if err == errNull {
		return dom.Geometry{}, dom.ErrDetached
	}
	return g, err
}

func (d *Document) Count(q dom.Query) (int, error) {
	var c int
	if err := d.call(&c, "count", q.Syntax.String(), q.Expr); err != nil && err != errNull {
		return 0, err
	}
	return c, nil
}

func (d *Document) Evaluate(q dom.Query) ([]dom.Node, error) {
	var ids []uint64
	if err := d.call(&ids, "query", q.Syntax.String(), q.Expr); err != nil && err != errNull {
		return nil, err
	}
	return toNodes(ids), nil
}

func (d *Document) RootClasses() []string {
	var cls []string
	d.quiet("rootClasses", d.call(&cls, "rootClasses"))
	return cls
}

func (d *Document) Viewport() (int, int) {
	var wh [2]int
	d.quiet("viewport", d.call(&wh, "viewport"))
	return wh[0], wh[1]
}

func (d *Document) URL() string {
	info, err := d.page.Info()
	if err != nil {
		d.quiet("url", err)
		return ""
	}
	return info.URL
}

func (d *Document) AnimationDuration(n dom.Node) time.Duration {
	var ms float64
	d.quiet("animation", d.call(&ms, "animation", uint64(n)))
	return time.Duration(ms * float64(time.Millisecond))
}

func toNodes(ids []uint64) []dom.Node {
	out := make([]dom.Node, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			out = append(out, dom.Node(id))
		}
	}
	return out
}
