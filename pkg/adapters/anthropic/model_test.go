package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/anthropic"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T, body string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newModel(url string) *anthropic.Model {
	return anthropic.NewModel(func(o *anthropic.Options) {
		o.APIKey = "test"
		o.BaseURL = url + "/"
		o.Model = "claude-test"
		o.MaxRetries = 0
	})
}

func TestModel_TextAndToolUse(t *testing.T) {
	var got map[string]any
	srv := fakeServer(t, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"stop_reason": "tool_use", "usage": {"input_tokens": 1, "output_tokens": 1},
		"content": [
			{"type": "text", "text": "Let me add."},
			{"type": "tool_use", "id": "toolu_1", "name": "add", "input": {"a": 3, "b": 4}}
		]
	}`, &got)

	msg, err := newModel(srv.URL).Complete(context.Background(), ports.CompletionRequest{
		Messages: []domain.Message{
			domain.SystemMessage("be brief"),
			domain.HumanMessage("3+4?"),
			domain.AssistantMessage("", domain.ToolCall{ID: "toolu_0", Name: "add", Arguments: json.RawMessage(`{"a":1,"b":1}`)}),
			domain.ToolMessage("toolu_0", "add", "2", false),
		},
		Tools: []domain.Tool{{Name: "add", Description: "Adds.", Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}},
			"required":   []any{"a"},
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Let me add.", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "toolu_1", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"a":3,"b":4}`, string(msg.ToolCalls[0].Arguments))

	assert.Equal(t, "claude-test", got["model"])
	system := got["system"].([]any)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3, "system is hoisted and the tool result is its own user turn")
	last := msgs[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	block := last["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "toolu_0", block["tool_use_id"])
}

func TestModel_StructuredViaForcedTool(t *testing.T) {
	var got map[string]any
	srv := fakeServer(t, `{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-test",
		"stop_reason": "tool_use", "usage": {"input_tokens": 1, "output_tokens": 1},
		"content": [{"type": "tool_use", "id": "toolu_2", "name": "verdict", "input": {"resolved": true}}]
	}`, &got)

	msg, err := newModel(srv.URL).Complete(context.Background(), ports.CompletionRequest{
		Messages: []domain.Message{domain.HumanMessage("fixed?")},
		Format:   &ports.ResponseFormat{Name: "verdict", Schema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	assert.False(t, msg.HasToolCalls())
	assert.JSONEq(t, `{"resolved":true}`, msg.Content)

	choice := got["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "verdict", choice["name"])
}
