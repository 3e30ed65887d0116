// Package step defines the immutable record produced by one finished
// interaction session, and its JSON trace encoding.
package step

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/settle"
)

// Type is the trigger event type.
type Type string

const (
	Click       Type = "click"
	DblClick    Type = "dblclick"
	Input       Type = "input"
	Change      Type = "change"
	InputChange Type = "input_change"
	Keydown     Type = "keydown"
	Submit      Type = "submit"
	Focus       Type = "focus"
	Scroll      Type = "scroll"
	Checkpoint  Type = "checkpoint"
	Capture     Type = "capture"
	StyleChange Type = "style_change"
	Expand      Type = "expand"
	BatchStyle  Type = "batch_style"
)

// InputFamily reports types that surface one keystroke through several
// event channels.
func (t Type) InputFamily() bool {
	return t == Input || t == Change || t == InputChange
}

// ClickLike reports pointer activations.
func (t Type) ClickLike() bool { return t == Click || t == DblClick }

// Modifiers are the keyboard modifiers held during a trigger.
type Modifiers struct {
	Alt   bool `json:"alt,omitempty"`
	Ctrl  bool `json:"ctrl,omitempty"`
	Meta  bool `json:"meta,omitempty"`
	Shift bool `json:"shift,omitempty"`
}

// Metadata is page and element context captured at trigger time.
type Metadata struct {
	URL            string `json:"url,omitempty"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
	Tag            string `json:"tag,omitempty"`
	Role           string `json:"role,omitempty"`
	Text           string `json:"text,omitempty"`
	Href           string `json:"href,omitempty"`
}

// StyleEdit is an explicit style change on one element.
type StyleEdit struct {
	Locator    *locator.Locator  `json:"locator,omitempty"`
	Properties map[string]string `json:"properties"`
}

// Trigger is the event that opened a session.
type Trigger struct {
	Type             Type              `json:"type"`
	Locator          *locator.Locator  `json:"locator,omitempty"`
	LocatorFallbacks []locator.Locator `json:"locator_fallbacks,omitempty"`
	Metadata         Metadata          `json:"metadata"`
	Timestamp        time.Time         `json:"timestamp"`

	// click
	X         float64   `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	Button    int       `json:"button,omitempty"`
	Modifiers Modifiers `json:"modifiers,omitzero"`

	// keydown, input
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	// scroll
	ScrollX float64 `json:"scroll_x,omitempty"`
	ScrollY float64 `json:"scroll_y,omitempty"`
	DeltaX  float64 `json:"delta_x,omitempty"`
	DeltaY  float64 `json:"delta_y,omitempty"`

	// checkpoint, capture
	Label string `json:"label,omitempty"`
	Mode  string `json:"mode,omitempty"`

	// style_change, batch_style, expand
	Styles       []StyleEdit `json:"styles,omitempty"`
	ExpandHeight float64     `json:"expand_height,omitempty"`
}

// ClassToggle is the class delta of one mutated element.
type ClassToggle struct {
	Locator *locator.Locator `json:"locator"`
	Added   []string         `json:"added,omitempty"`
	Removed []string         `json:"removed,omitempty"`
}

// ClassDiff is the before/after change of the page's top-level classes.
type ClassDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether nothing changed.
func (d *ClassDiff) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0)
}

// Effects summarizes what a trigger changed.
type Effects struct {
	ClassToggles     []ClassToggle       `json:"class_toggles,omitempty"`
	RootClassChanges *ClassDiff          `json:"body_class_changes,omitempty"`
	NewElements      []settle.NewElement `json:"new_elements,omitempty"`
}

// Step is one finalized session.
type Step struct {
	ID             string        `json:"step_id"`
	Trigger        Trigger       `json:"trigger"`
	Effects        Effects       `json:"effects"`
	VisualSettling settle.Report `json:"visual_settling"`
	DurationMs     int64         `json:"duration_ms"`
}

// Expression returns the primary locator expression, or "".
func (s *Step) Expression() string {
	if s.Trigger.Locator == nil {
		return ""
	}
	return s.Trigger.Locator.Expression
}

// Locators returns the primary locator followed by its fallbacks.
func (s *Step) Locators() []locator.Locator {
	var out []locator.Locator
	if s.Trigger.Locator != nil {
		out = append(out, *s.Trigger.Locator)
	}
	return append(out, s.Trigger.LocatorFallbacks...)
}

// Marshal encodes a trace as indented JSON.
func Marshal(steps []Step) ([]byte, error) {
	if steps == nil {
		steps = []Step{}
	}
	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("step: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a JSON trace.
func Unmarshal(data []byte) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("step: unmarshal: %w", err)
	}
	return steps, nil
}

// Decode reads a JSON trace from r.
func Decode(r io.Reader) ([]Step, error) {
	var steps []Step
	if err := json.NewDecoder(r).Decode(&steps); err != nil {
		return nil, fmt.Errorf("step: decode: %w", err)
	}
	return steps, nil
}
