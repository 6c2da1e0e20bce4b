package workflow_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nvrdftd/evolve-ai-infra/internal/runtime"
	"github.com/nvrdftd/evolve-ai-infra/internal/workflow"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCall(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestAssistant_ToolRoundTrip(t *testing.T) {
	model := memory.NewModel(
		domain.AssistantMessage("", toolCall("c1", "add", `{"a":3,"b":4}`), toolCall("c2", "multiply", `{"a":3,"b":4}`)),
		domain.AssistantMessage("3+4 is 7 and 3*4 is 12"),
	)
	g, err := workflow.NewAssistant(workflow.Dependencies{Model: model}, workflow.AssistantConfig{})
	require.NoError(t, err)

	out := runtime.NewExecutor().Start(context.Background(), g, domain.NewState(domain.HumanMessage("3+4 and 3*4?"))).Wait()
	require.NoError(t, out.Err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, 2, out.State.CallCount)

	msgs := out.State.Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "7", msgs[2].Content)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "12", msgs[3].Content)
	assert.Equal(t, "3+4 is 7 and 3*4 is 12", msgs[4].Content)

	reqs := model.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 2)
	assert.Equal(t, "add", reqs[0].Tools[0].Name)
	assert.Equal(t, domain.RoleSystem, reqs[0].Messages[0].Role)
	assert.Len(t, reqs[1].Messages, 5, "system prompt plus four conversation messages")
}

func TestAssistant_ToolLoopIsBounded(t *testing.T) {
	model := memory.NewModel().Respond(func(context.Context, ports.CompletionRequest) (domain.Message, error) {
		return domain.AssistantMessage("", toolCall("", "add", `{"a":1,"b":1}`)), nil
	})
	g, err := workflow.NewAssistant(workflow.Dependencies{Model: model}, workflow.AssistantConfig{MaxToolTurns: 2})
	require.NoError(t, err)

	out := runtime.NewExecutor().Start(context.Background(), g, domain.NewState(domain.HumanMessage("loop"))).Wait()
	assert.Equal(t, domain.StatusFailed, out.Status)
	var lle *runtime.LoopLimitError
	require.ErrorAs(t, out.Err, &lle)
	assert.Equal(t, 2, lle.Max)
	assert.Equal(t, 3, out.State.CallCount)
}

func TestAssistant_UnknownToolIsReportedToModel(t *testing.T) {
	model := memory.NewModel(
		domain.AssistantMessage("", toolCall("c1", "divide", `{"a":1,"b":2}`)),
		domain.AssistantMessage("I cannot divide."),
	)
	g, err := workflow.NewAssistant(workflow.Dependencies{Model: model}, workflow.AssistantConfig{})
	require.NoError(t, err)

	out := runtime.NewExecutor().Start(context.Background(), g, domain.NewState(domain.HumanMessage("1/2?"))).Wait()
	require.Equal(t, domain.StatusCompleted, out.Status)
	assert.True(t, out.State.Messages[2].IsError)
	assert.Contains(t, out.State.Messages[2].Content, "unknown tool")
}

func TestNewAssistant_RequiresModel(t *testing.T) {
	_, err := workflow.NewAssistant(workflow.Dependencies{}, workflow.AssistantConfig{})
	assert.Error(t, err)
}
