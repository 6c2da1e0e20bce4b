package domain

import "encoding/json"

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation entry.
// Messages are values; once appended to a State they are never modified.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is only set on assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID correlates a tool message with the ToolCall that produced it.
	ToolCallID string `json:"toolCallId,omitempty"`
	// Name is the tool name for tool messages.
	Name    string `json:"name,omitempty"`
	IsError bool   `json:"isError,omitempty"`
}

// SystemMessage builds a system instruction message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// HumanMessage builds a message authored by the user.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AssistantMessage builds a model response, optionally requesting tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds the result message of a tool call.
func ToolMessage(callID, name, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       name,
		IsError:    isError,
	}
}

// HasToolCalls reports whether the message requests at least one tool invocation.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ToolCall is a model request to invoke a named tool.
// Arguments is the raw JSON document produced by the model; it is untrusted.
type ToolCall struct {
	ID        string          `json:"id" mapstructure:"id"`
	Name      string          `json:"name" mapstructure:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty" mapstructure:"arguments"`
}

// ToolResult is the outcome of one dispatched ToolCall.
type ToolResult struct {
	ID      string `json:"id"` // Must match the ToolCall.ID
	Name    string `json:"name"`
	Result  any    `json:"result,omitempty"`
	IsError bool   `json:"isError,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool describes a registered tool to a model.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}
