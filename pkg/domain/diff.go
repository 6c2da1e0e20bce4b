package domain

import (
	"reflect"
)

// StateDelta represents the changes a single node merge applied to the state.
// It is serialized to JSON for streaming consumers, who apply it to their local copy.
type StateDelta struct {
	RunID string `json:"runId"`
	// Step is the 1-based index of the node execution within the run.
	Step int    `json:"step"`
	Node string `json:"node"`

	// Messages contains only the messages appended by this merge.
	Messages []Message `json:"messages,omitempty"`

	// CallCount is the new total, present only when it changed.
	CallCount *int `json:"callCount,omitempty"`

	// Values contains only changed or added keys.
	// For deletions, the key is present with a nil value.
	Values map[string]any `json:"values,omitempty"`
}

// Diff calculates what changed between two states.
// Messages are assumed append-only, which the reducers guarantee.
func Diff(oldState, newState State) StateDelta {
	var delta StateDelta

	if n := len(oldState.Messages); len(newState.Messages) > n {
		delta.Messages = append([]Message(nil), newState.Messages[n:]...)
	}

	if oldState.CallCount != newState.CallCount {
		count := newState.CallCount
		delta.CallCount = &count
	}

	delta.Values = diffValues(oldState.Values, newState.Values)
	return delta
}

func diffValues(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	// Added or modified
	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Deleted
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	// Return nil so omitempty removes the key
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the delta contains any actionable changes.
func (d StateDelta) IsEmpty() bool {
	return len(d.Messages) == 0 &&
		d.CallCount == nil &&
		len(d.Values) == 0
}

// Apply merges the delta into a local copy of the state, as a streaming client would.
func (d StateDelta) Apply(s State) State {
	out := s.Clone()
	out.Messages = append(out.Messages, d.Messages...)
	if d.CallCount != nil {
		out.CallCount = *d.CallCount
	}
	for k, v := range d.Values {
		if v == nil {
			delete(out.Values, k)
			continue
		}
		out.Values[k] = v
	}
	return out
}
