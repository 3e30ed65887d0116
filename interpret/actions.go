package interpret

import (
	"fmt"
	"math"
	"strings"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/settle"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

// Intent is the semantic class of a step.
type Intent string

const (
	InitialStateCapture Intent = "INITIAL_STATE_CAPTURE"
	OpenOverlay         Intent = "OPEN_OVERLAY"
	UIExpansion         Intent = "UI_EXPANSION"
	VisualTransition    Intent = "VISUAL_TRANSITION"
	FormSubmission      Intent = "FORM_SUBMISSION"
	ConfirmAction       Intent = "CONFIRM_ACTION"
	CancelAction        Intent = "CANCEL_ACTION"
	UserInteraction     Intent = "USER_INTERACTION"
)

// StabilizationRule tells replay how long to wait after an action.
type StabilizationRule struct {
	MaxWaitMs       int64   `json:"max_wait_ms"`
	MinStableFrames int     `json:"min_stable_frames"`
	ObservedShift   float64 `json:"observed_shift"`
}

// CaptureTarget is what a screenshot after the action should frame.
type CaptureTarget struct {
	Locator *locator.Locator `json:"locator,omitempty"`
	Rect    dom.Rect         `json:"rect"`
}

// SemanticAction is the interpreted form of one step.
type SemanticAction struct {
	Intent                Intent             `json:"intent"`
	Label                 string             `json:"label"`
	Step                  int                `json:"step"`
	Trigger               step.Trigger       `json:"trigger"`
	Effects               step.Effects       `json:"effects"`
	RequiresStabilization bool               `json:"requires_stabilization"`
	StabilizationRule     *StabilizationRule `json:"stabilization_rule,omitempty"`
	CaptureTarget         *CaptureTarget     `json:"capture_target,omitempty"`
}

var overlayWords = map[string]bool{
	"modal": true, "overlay": true, "open": true, "active": true, "dialog": true,
	"show": true, "drawer": true, "popup": true, "lightbox": true,
}

var backdropWords = []string{"backdrop", "fade", "mask", "scrim"}

// overlayClass reports whether any word of c names an overlay state.
func overlayClass(c string) bool {
	for _, w := range strings.FieldsFunc(strings.ToLower(c), func(r rune) bool {
		return r == '-' || r == '_'
	}) {
		if overlayWords[w] {
			return true
		}
	}
	return false
}

var buttonTags = map[string]bool{"button": true, "a": true, "summary": true}

var buttonRoles = map[string]bool{"button": true, "link": true, "tab": true, "menuitem": true}

func buttonLike(t step.Trigger) bool {
	return buttonTags[t.Metadata.Tag] || buttonRoles[t.Metadata.Role]
}

// DeriveSemanticActions maps each step to a SemanticAction.
func (in *Interpreter) DeriveSemanticActions(steps []step.Step) []SemanticAction {
	out := make([]SemanticAction, 0, len(steps))
	for i := range steps {
		s := &steps[i]
		intent := in.classify(s)
		a := SemanticAction{
			Intent:  intent,
			Label:   describe(s, intent),
			Step:    i,
			Trigger: s.Trigger,
			Effects: s.Effects,
		}
		vs := s.VisualSettling
		if vs.MaxLayoutShift > in.cfg.NoiseFloorPx {
			a.RequiresStabilization = true
			a.StabilizationRule = &StabilizationRule{
				MaxWaitMs:       max(vs.TotalMs, vs.MaxCSSDurationMs),
				MinStableFrames: 3,
				ObservedShift:   vs.MaxLayoutShift,
			}
		}
		if ne := DominantNewElement(s.Effects.NewElements); ne != nil {
			a.CaptureTarget = &CaptureTarget{Locator: ne.Locator, Rect: ne.Rect}
		}
		out = append(out, a)
	}
	return out
}

// classify is the priority-ordered intent decision table.
func (in *Interpreter) classify(s *step.Step) Intent {
	t := s.Trigger
	shift := s.VisualSettling.MaxLayoutShift
	switch {
	case t.Type == step.Checkpoint:
		return InitialStateCapture
	case s.Effects.RootClassChanges != nil && anyOverlay(s.Effects.RootClassChanges.Added):
		return OpenOverlay
	case shift > in.cfg.SignificantShiftPx && buttonLike(t):
		return UIExpansion
	case len(s.Effects.NewElements) > 0:
		return VisualTransition
	case shift > in.cfg.NoiseFloorPx:
		return VisualTransition
	case t.Type == step.Submit:
		return FormSubmission
	case t.Type == step.Keydown && t.Key == "Enter":
		return ConfirmAction
	case t.Type == step.Keydown && t.Key == "Escape":
		return CancelAction
	default:
		return UserInteraction
	}
}

func anyOverlay(classes []string) bool {
	for _, c := range classes {
		if overlayClass(c) {
			return true
		}
	}
	return false
}

// DominantNewElement returns the largest new element whose locator does
// not look like a backdrop, falling back to the first one.
func DominantNewElement(els []settle.NewElement) *settle.NewElement {
	if len(els) == 0 {
		return nil
	}
	best := -1
	bestArea := math.Inf(-1)
	for i := range els {
		if backdrop(els[i].Locator) {
			continue
		}
		if a := els[i].Rect.Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		best = 0
	}
	return &els[best]
}

func backdrop(l *locator.Locator) bool {
	if l == nil {
		return false
	}
	e := strings.ToLower(l.Expression)
	for _, w := range backdropWords {
		if strings.Contains(e, w) {
			return true
		}
	}
	return false
}

// target names the trigger element for labels.
func target(t step.Trigger) string {
	switch {
	case t.Metadata.Text != "":
		return fmt.Sprintf("%q", t.Metadata.Text)
	case t.Locator != nil:
		return t.Locator.Expression
	case t.Metadata.Tag != "":
		return t.Metadata.Tag
	}
	return "page"
}

func describe(s *step.Step, intent Intent) string {
	t := s.Trigger
	var l string
	switch intent {
	case InitialStateCapture:
		l = "Capture initial state"
		if t.Label != "" {
			l += ": " + t.Label
		}
	case OpenOverlay:
		l = "Open overlay via " + target(t)
	case UIExpansion:
		l = "Expand " + target(t)
	case FormSubmission:
		l = "Submit form"
	case ConfirmAction:
		l = "Confirm with Enter"
	case CancelAction:
		l = "Cancel with Escape"
	default:
		l = verb(t)
	}
	return workflow.Label(l)
}

func verb(t step.Trigger) string {
	switch t.Type {
	case step.Click, step.DblClick:
		return "Click " + target(t)
	case step.Input, step.Change, step.InputChange:
		return "Type into " + target(t)
	case step.Keydown:
		return "Press " + t.Key
	case step.Scroll:
		return fmt.Sprintf("Scroll %s %.0fpx", direction(t.DeltaY), math.Abs(t.DeltaY))
	case step.Focus:
		return "Focus " + target(t)
	case step.Submit:
		return "Submit form"
	case step.Capture:
		if t.Label != "" {
			return "Capture " + t.Label
		}
		return "Capture screenshot"
	case step.StyleChange, step.BatchStyle:
		return "Apply style to " + target(t)
	case step.Expand:
		return "Expand " + target(t)
	}
	return string(t.Type)
}

func direction(dy float64) string {
	if dy < 0 {
		return "up"
	}
	return "down"
}
