package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	// Run stream events.
	EventDelta     EventType = "delta"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"

	// Lifecycle hook events.
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
)

// Event is one item of a Run's stream.
// A stream carries zero or more EventDelta items followed by exactly one terminal item.
type Event struct {
	Type  EventType
	RunID string

	// Delta is set on EventDelta.
	Delta *StateDelta
	// State is the final state, set on terminal events.
	State *State
	// Err is set on EventFailed and EventCancelled.
	Err error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	}
	return false
}

// MarshalJSON renders the error as a message string.
func (e Event) MarshalJSON() ([]byte, error) {
	wire := struct {
		Type  EventType   `json:"type"`
		RunID string      `json:"runId"`
		Delta *StateDelta `json:"delta,omitempty"`
		State *State      `json:"state,omitempty"`
		Error string      `json:"error,omitempty"`
	}{
		Type:  e.Type,
		RunID: e.RunID,
		Delta: e.Delta,
		State: e.State,
	}
	if e.Err != nil {
		wire.Error = e.Err.Error()
	}
	return json.Marshal(wire)
}

// EventBase contains common fields for all hook events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	Node string `json:"node"`
	Step int    `json:"step"`
	// Err is set on leave when the handler failed.
	Err error `json:"-"`
	// Duration is set on leave.
	Duration time.Duration `json:"duration,omitempty"`
}

// ToolEvent represents a tool execution.
type ToolEvent struct {
	EventBase
	Node     string        `json:"node"`
	CallID   string        `json:"call_id"`
	ToolName string        `json:"tool_name"`
	Input    any           `json:"input,omitempty"`
	Output   any           `json:"output,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the run goroutine and must not block.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:  chainNode(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave:  chainNode(h.OnNodeLeave, other.OnNodeLeave),
		OnToolCall:   chainTool(h.OnToolCall, other.OnToolCall),
		OnToolReturn: chainTool(h.OnToolReturn, other.OnToolReturn),
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainTool(a, b func(context.Context, *ToolEvent)) func(context.Context, *ToolEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *ToolEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
