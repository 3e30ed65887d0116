package session

import (
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/dom"
	"github.com/jmrcs97/FlowCapture-sub000/step"
)

// Event is the input union consumed by Recorder.Ingest. Host adapters turn
// platform events into one of TriggerEvent, MutationsEvent or StopEvent.
type Event interface {
	event()
}

// StyleInput is one explicit style edit requested by the user.
type StyleInput struct {
	Target     dom.Node
	Properties map[string]string
}

// TriggerEvent is a user interaction that may open a session.
type TriggerEvent struct {
	Type   step.Type
	Target dom.Node
	// Timestamp defaults to the recorder clock when zero.
	Timestamp time.Time

	X, Y      float64
	Button    int
	Modifiers step.Modifiers

	Key   string
	Value string

	ScrollX, ScrollY float64
	DeltaX, DeltaY   float64

	Label string
	Mode  string

	Styles       []StyleInput
	ExpandHeight float64
	// Nudge marks an incremental height adjustment; consecutive nudges on
	// one target are debounced into a single expand trigger.
	Nudge bool
}

// MutationsEvent is one batch from the host's mutation observer.
type MutationsEvent struct {
	Records []dom.Mutation
}

// StopEvent force-finalizes the open session.
type StopEvent struct{}

func (TriggerEvent) event()   {}
func (MutationsEvent) event() {}
func (StopEvent) event()      {}
