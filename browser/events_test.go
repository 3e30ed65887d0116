package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/session"
	"github.com/jmrcs97/FlowCapture-sub000/step"
)

func TestDecodeBatch(t *testing.T) {
	payload := `[
		{"kind":"childList","target":10,"added":[11,12]},
		{"kind":"attributes","target":11,"attribute_name":"class","old_value":"a"},
		{"kind":"trigger","type":"click","target":12,"ts":1700000000000,"x":5,"y":6,"button":2,"shift":true},
		{"kind":"trigger","type":"wheel","target":12},
		{"kind":"trigger","type":"scroll","target":1,"delta_y":120,"scroll_y":360},
		{"kind":"childList","target":10,"added":[13]}
	]`
	events, err := decodeBatch(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Fatalf("events: got %d, want 4", len(events))
	}

	muts, ok := events[0].(session.MutationsEvent)
	if !ok || len(muts.Records) != 2 {
		t.Fatalf("first event: got %#v", events[0])
	}
	if muts.Records[0].Kind != dom.ChildListChange || len(muts.Records[0].Added) != 2 {
		t.Errorf("childList record: %+v", muts.Records[0])
	}
	if muts.Records[1].AttributeName != "class" || muts.Records[1].OldValue != "a" {
		t.Errorf("attribute record: %+v", muts.Records[1])
	}

	click, ok := events[1].(session.TriggerEvent)
	if !ok || click.Type != step.Click || click.Target != 12 {
		t.Fatalf("click: got %#v", events[1])
	}
	if click.Button != 2 || !click.Modifiers.Shift || click.X != 5 {
		t.Errorf("click fields: %+v", click)
	}
	if !click.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp: got %v", click.Timestamp)
	}

	scroll := events[2].(session.TriggerEvent)
	if scroll.Type != step.Scroll || scroll.DeltaY != 120 || scroll.ScrollY != 360 {
		t.Errorf("scroll: %+v", scroll)
	}
	if !scroll.Timestamp.IsZero() {
		t.Errorf("missing ts should leave timestamp zero, got %v", scroll.Timestamp)
	}

	if tail, ok := events[3].(session.MutationsEvent); !ok || tail.Records[0].Added[0] != 13 {
		t.Errorf("trailing mutations: %#v", events[3])
	}
}

func TestDecodeBatch_Malformed(t *testing.T) {
	if _, err := decodeBatch(`{"kind":`); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseStealth(t *testing.T) {
	cases := map[string]StealthLevel{
		"off":      LevelOff,
		"headful":  LevelHeadful,
		"headless": LevelHeadless,
		"":         LevelHeadless,
		" Off ":    LevelOff,
	}
	for in, want := range cases {
		if got := ParseStealth(in); got != want {
			t.Errorf("ParseStealth(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"Images", "fonts", "script"})
	cases := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Stylesheet": false,
		"Script":     false,
		"Document":   false,
	}
	for typ, want := range cases {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q): got %v, want %v", typ, got, want)
		}
	}
}

func TestRecorderScript_ReleasesCollectedNodes(t *testing.T) {
	for _, want := range []string{"new FinalizationRegistry(", "refs.delete(id)", "reaper.register(el, id)", bindingName} {
		if !strings.Contains(recorderJS, want) {
			t.Errorf("recorder script is missing %q", want)
		}
	}
}
