// Package openai implements ports.Model on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
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

// Model wraps a Chat Completions client.
type Model struct {
	client *openai.Client
	opts   Options
}

func defaults() Options {
	return Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0,
		MaxTokens:   2048,
		MaxRetries:  -1,
	}
}

// NewModel creates a model using the official client. The API key falls back to OPENAI_API_KEY.
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
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements ports.Model.
func (m *Model) Complete(ctx context.Context, req ports.CompletionRequest) (domain.Message, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
	if err != nil {
		return domain.Message{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Message{}, errors.New("openai: no choices returned")
	}

	msg := resp.Choices[0].Message
	calls := make([]domain.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return domain.AssistantMessage(msg.Content, calls...), nil
}

func (m *Model) buildParams(req ports.CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxTokens),
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  t.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	if req.Format != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Format.Name,
					Schema: req.Format.Schema,
				},
			},
		}
	}
	return params
}

// buildMessages maps the conversation to chat messages. Tool results keep their call IDs.
func buildMessages(msgs []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case domain.RoleAssistant:
			if !msg.HasToolCalls() {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case domain.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
