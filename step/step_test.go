package step

import (
	"strings"
	"testing"

	"github.com/jmrcs97/FlowCapture-sub000/locator"
)

const trace = `[
  {
    "step_id": "s1",
    "trigger": {
      "type": "click",
      "locator": {"expression": "#save", "strategy": "id"},
      "locator_fallbacks": [{"expression": "text/Save", "strategy": "text_content"}],
      "metadata": {"url": "https://example.test/", "viewport_width": 1280, "viewport_height": 800},
      "timestamp": "2026-01-01T00:00:00Z",
      "x": 10, "y": 20
    },
    "effects": {"body_class_changes": {"added": ["modal-open"]}},
    "visual_settling": {"frames_observed": 3, "max_layout_shift": 12.5, "settle_frame": 1, "stabilized": true, "timed_out": false, "total_ms": 150, "max_css_duration_ms": 0},
    "duration_ms": 160
  }
]`

func TestDecodeTrace(t *testing.T) {
	steps, err := Decode(strings.NewReader(trace))
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 1 {
		t.Fatalf("steps: got %d, want 1", len(steps))
	}
	s := steps[0]
	if s.Expression() != "#save" || s.Trigger.Locator.Kind != locator.KindID {
		t.Errorf("locator: got %+v", s.Trigger.Locator)
	}
	if locs := s.Locators(); len(locs) != 2 || locs[1].Kind != locator.KindTextContent {
		t.Errorf("Locators: got %+v", locs)
	}
	if s.Effects.RootClassChanges.Empty() || s.Effects.RootClassChanges.Added[0] != "modal-open" {
		t.Errorf("class diff: got %+v", s.Effects.RootClassChanges)
	}
	if s.VisualSettling.SettleFrame == nil || *s.VisualSettling.SettleFrame != 1 {
		t.Errorf("settle frame: got %v", s.VisualSettling.SettleFrame)
	}

	data, err := Marshal(steps)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"step_id": "s1"`) {
		t.Errorf("marshal output missing step id:\n%s", data)
	}
}

func TestMarshalEmpty(t *testing.T) {
	data, err := Marshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("got %s, want []", data)
	}
	if _, err := Unmarshal([]byte("{")); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestTypeFamilies(t *testing.T) {
	for _, typ := range []Type{Input, Change, InputChange} {
		if !typ.InputFamily() {
			t.Errorf("%s should be input family", typ)
		}
	}
	if Click.InputFamily() || !DblClick.ClickLike() || Scroll.ClickLike() {
		t.Error("family classification wrong")
	}
}
