package interpret

// PatternKind names a detected higher-level pattern.
type PatternKind string

const (
	CollectionInteraction PatternKind = "CollectionInteraction"
	OverlayFlowDetected   PatternKind = "OverlayFlowDetected"
)

// Pattern is one detected pattern. Collection is set for
// CollectionInteraction; Steps lists the action indices involved.
type Pattern struct {
	Kind       PatternKind        `json:"kind"`
	Collection *CollectionPattern `json:"collection,omitempty"`
	Consistent bool               `json:"consistent"`
	Steps      []int              `json:"steps"`
}

type effectShape struct {
	newElements bool
	rootClasses bool
	toggles     bool
}

func shapeOf(a *SemanticAction) effectShape {
	return effectShape{
		newElements: len(a.Effects.NewElements) > 0,
		rootClasses: !a.Effects.RootClassChanges.Empty(),
		toggles:     len(a.Effects.ClassToggles) > 0,
	}
}

// IdentifyPatterns emits one CollectionInteraction per collection, with
// its dominant intent and a consistency flag over intents and effect
// shapes, plus OverlayFlowDetected when any action opened an overlay.
func IdentifyPatterns(collections []CollectionPattern, actions []SemanticAction) []Pattern {
	var out []Pattern
	for i := range collections {
		c := &collections[i]
		counts := make(map[Intent]int)
		var order []Intent
		consistent := true
		var first *SemanticAction
		for _, si := range c.Steps {
			if si < 0 || si >= len(actions) {
				continue
			}
			a := &actions[si]
			if counts[a.Intent] == 0 {
				order = append(order, a.Intent)
			}
			counts[a.Intent]++
			if first == nil {
				first = a
			} else if a.Intent != first.Intent || shapeOf(a) != shapeOf(first) {
				consistent = false
			}
		}
		for _, it := range order {
			if counts[it] > counts[c.DominantIntent] {
				c.DominantIntent = it
			}
		}
		c.IsConsistent = consistent
		out = append(out, Pattern{Kind: CollectionInteraction, Collection: c, Consistent: consistent, Steps: c.Steps})
	}

	var overlay []int
	for i := range actions {
		if actions[i].Intent == OpenOverlay {
			overlay = append(overlay, i)
		}
	}
	if len(overlay) > 0 {
		out = append(out, Pattern{Kind: OverlayFlowDetected, Consistent: true, Steps: overlay})
	}
	return out
}
