package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/session"
	"github.com/jmrcs97/FlowCapture-sub000/step"
)

// jsRecord is one entry of a binding payload.
type jsRecord struct {
	Kind   string `json:"kind"`
	Type   string `json:"type"`
	Target uint64 `json:"target"`
	TS     int64  `json:"ts"`

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	Alt    bool    `json:"alt"`
	Ctrl   bool    `json:"ctrl"`
	Meta   bool    `json:"meta"`
	Shift  bool    `json:"shift"`

	Key   string `json:"key"`
	Value string `json:"value"`

	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
	DeltaX  float64 `json:"delta_x"`
	DeltaY  float64 `json:"delta_y"`

	Added         []uint64 `json:"added"`
	AttributeName string   `json:"attribute_name"`
	OldValue      string   `json:"old_value"`
}

var triggerTypes = map[string]step.Type{
	"click":    step.Click,
	"dblclick": step.DblClick,
	"input":    step.Input,
	"change":   step.Change,
	"keydown":  step.Keydown,
	"submit":   step.Submit,
	"focus":    step.Focus,
	"scroll":   step.Scroll,
}

// decodeBatch turns a binding payload into session events. Consecutive
// mutation records collapse into one MutationsEvent; unknown records are
// skipped.
func decodeBatch(payload string) ([]session.Event, error) {
	var recs []jsRecord
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		return nil, fmt.Errorf("browser: decode payload: %w", err)
	}

	var out []session.Event
	var muts []dom.Mutation
	flush := func() {
		if len(muts) > 0 {
			out = append(out, session.MutationsEvent{Records: muts})
			muts = nil
		}
	}

	for i := range recs {
		r := &recs[i]
		switch r.Kind {
		case "childList":
			added := make([]dom.Node, 0, len(r.Added))
			for _, id := range r.Added {
				added = append(added, dom.Node(id))
			}
			muts = append(muts, dom.Mutation{Kind: dom.ChildListChange, Target: dom.Node(r.Target), Added: added})
		case "attributes":
			muts = append(muts, dom.Mutation{
				Kind:          dom.AttributeChange,
				Target:        dom.Node(r.Target),
				AttributeName: r.AttributeName,
				OldValue:      r.OldValue,
			})
		case "trigger":
			typ, ok := triggerTypes[r.Type]
			if !ok {
				continue
			}
			flush()
			ev := session.TriggerEvent{
				Type:      typ,
				Target:    dom.Node(r.Target),
				X:         r.X,
				Y:         r.Y,
				Button:    r.Button,
				Modifiers: step.Modifiers{Alt: r.Alt, Ctrl: r.Ctrl, Meta: r.Meta, Shift: r.Shift},
				Key:       r.Key,
				Value:     r.Value,
				ScrollX:   r.ScrollX,
				ScrollY:   r.ScrollY,
				DeltaX:    r.DeltaX,
				DeltaY:    r.DeltaY,
			}
			if r.TS > 0 {
				ev.Timestamp = time.UnixMilli(r.TS)
			}
			out = append(out, ev)
		}
	}
	flush()
	return out, nil
}

// Listen forwards page events to sink until ctx is cancelled. sink
// returns false when it drops an event; drops are counted, not retried.
func Listen(ctx context.Context, t *Tab, sink func(session.Event) bool, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	var dropped int
	t.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		events, err := decodeBatch(e.Payload)
		if err != nil {
			logger.Warn("browser: parse binding payload", "error", err)
			return
		}
		for _, ev := range events {
			if !sink(ev) {
				dropped++
			}
		}
	})()
	logger.Debug("browser: listener stopped", "dropped", dropped)
}
