package domain

import "maps"

// RunStatus describes the lifecycle position of a Run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further node will execute.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// State is the working state of a Run.
type State struct {
	// Messages is append-only. Reducers only ever concatenate to it.
	Messages []Message `json:"messages"`

	// CallCount counts model invocations. It never decreases.
	CallCount int `json:"callCount"`

	// Values holds the additional fields declared on the graph, keyed by field name.
	Values map[string]any `json:"values,omitempty"`
}

// NewState creates a state seeded with the given messages.
func NewState(msgs ...Message) State {
	return State{
		Messages: append([]Message(nil), msgs...),
		Values:   make(map[string]any),
	}
}

// Clone returns a copy that can be handed to a node without exposing the Run's own slices.
// Field values are copied shallowly.
func (s State) Clone() State {
	out := State{
		Messages:  append([]Message(nil), s.Messages...),
		CallCount: s.CallCount,
		Values:    make(map[string]any, len(s.Values)),
	}
	maps.Copy(out.Values, s.Values)
	return out
}

// LastMessage returns the most recent message, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAssistant returns the most recent assistant message, if any.
func (s State) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Value returns an additional field by name.
func (s State) Value(name string) (any, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Update is the partial state returned by a node.
// A zero field means "no change" for that field.
type Update struct {
	Messages []Message `json:"messages,omitempty"`

	// CallCount is an increment, not an absolute value.
	CallCount int `json:"callCount,omitempty"`

	Values map[string]any `json:"values,omitempty"`
}

// IsEmpty reports whether the update carries no field at all.
func (u Update) IsEmpty() bool {
	return len(u.Messages) == 0 && u.CallCount == 0 && len(u.Values) == 0
}

// With returns a copy of the update with the named field set.
func (u Update) With(name string, value any) Update {
	values := make(map[string]any, len(u.Values)+1)
	maps.Copy(values, u.Values)
	values[name] = value
	u.Values = values
	return u
}
