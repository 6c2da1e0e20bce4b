// Package anthropic implements ports.Model on the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// Options configure the adapter.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	// MaxRetries overrides the SDK default when non-negative.
	MaxRetries int
}

// Model wraps a Messages API client.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaults() Options {
	return Options{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0,
		MaxTokens:   2048,
		MaxRetries:  -1,
	}
}

// NewModel creates a model using the official client. The API key falls back to ANTHROPIC_API_KEY.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries >= 0 {
		clientOpts = append(clientOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements ports.Model. Structured output is requested as a forced
// tool call whose input is the document; it is returned as message content.
func (m *Model) Complete(ctx context.Context, req ports.CompletionRequest) (domain.Message, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.opts.Model),
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}

	tools := req.Tools
	if req.Format != nil {
		tools = []domain.Tool{{Name: req.Format.Name, Description: "Respond with the result.", Parameters: req.Format.Schema}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Format.Name},
		}
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Message{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	var calls []domain.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			use := block.AsToolUse()
			args, err := json.Marshal(use.Input)
			if err != nil {
				return domain.Message{}, fmt.Errorf("anthropic: tool input: %w", err)
			}
			if req.Format != nil && use.Name == req.Format.Name {
				return domain.AssistantMessage(string(args)), nil
			}
			calls = append(calls, domain.ToolCall{ID: use.ID, Name: use.Name, Arguments: args})
		}
	}
	return domain.AssistantMessage(text.String(), calls...), nil
}

func systemBlocks(msgs []domain.Message) []anthropic.TextBlockParam {
	var out []anthropic.TextBlockParam
	for _, msg := range msgs {
		if msg.Role == domain.RoleSystem && msg.Content != "" {
			out = append(out, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return out
}

// buildMessages maps the conversation to Messages API turns.
// Consecutive tool results are folded into a single user turn.
func buildMessages(msgs []domain.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleSystem:
			continue
		case domain.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
			continue
		}
		flush()

		switch msg.Role {
		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						input = string(tc.Arguments)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	flush()
	return out
}

func buildTools(tools []domain.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		input := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := t.Parameters["properties"]; ok {
			input.Properties = props
		}
		switch req := t.Parameters["required"].(type) {
		case []string:
			input.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					input.Required = append(input.Required, s)
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(input, t.Name)
		if t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}
