package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/nvrdftd/evolve-ai-infra/pkg/tool"
)

// Assistant node names.
const (
	NodeLLMCall = "llmCall"
	NodeTools   = "tools"
)

// DefaultMaxToolTurns bounds the model/tool loop when no limit is configured.
const DefaultMaxToolTurns = 10

// AssistantConfig tunes the assistant graph.
type AssistantConfig struct {
	// Tools are offered to the model. Nil uses the calculator tools.
	Tools *tool.Registry
	// MaxToolTurns caps the tool rounds of a run. Exceeding it fails the run.
	MaxToolTurns int
	// Dispatch configures the tool node.
	Dispatch []tool.DispatcherOption
}

// NewAssistant compiles the llmCall/tools loop.
func NewAssistant(deps Dependencies, cfg AssistantConfig) (*graph.Graph, error) {
	if deps.Model == nil {
		return nil, errors.New("workflow: model is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = Calculator()
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = DefaultMaxToolTurns
	}
	dispatcher := tool.NewDispatcher(cfg.Tools, append([]tool.DispatcherOption{tool.WithLogger(deps.logger())}, cfg.Dispatch...)...)
	definitions := cfg.Tools.Definitions()

	llmCall := func(ctx context.Context, state domain.State) (domain.Update, error) {
		reply, err := deps.Model.Complete(ctx, ports.CompletionRequest{
			Messages: withSystem(promptAssistant, state.Messages),
			Tools:    definitions,
		})
		if err != nil {
			return domain.Update{}, fmt.Errorf("llm call: %w", err)
		}
		return domain.Update{Messages: []domain.Message{reply}, CallCount: 1}, nil
	}

	return graph.New(AssistantGraph).
		AddNode(NodeLLMCall, llmCall).
		AddNode(NodeTools, dispatcher.Handler()).
		SetEntry(NodeLLMCall).
		AddConditionalEdge(NodeLLMCall, tool.Route("tools", "done"), map[string]string{
			"tools": NodeTools,
			"done":  graph.END,
		}, graph.LoopLimit(cfg.MaxToolTurns, "")).
		AddEdge(NodeTools, NodeLLMCall).
		Compile()
}

type operands struct {
	A float64 `json:"a" jsonschema:"description=First number"`
	B float64 `json:"b" jsonschema:"description=Second number"`
}

// Calculator returns the add and multiply tools.
func Calculator() *tool.Registry {
	return tool.NewRegistry().MustRegister(
		tool.Func("add", "Add two numbers", func(_ context.Context, in operands) (any, error) {
			return in.A + in.B, nil
		}),
		tool.Func("multiply", "Multiply two numbers", func(_ context.Context, in operands) (any, error) {
			return in.A * in.B, nil
		}),
	)
}
