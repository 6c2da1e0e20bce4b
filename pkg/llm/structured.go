// Package llm holds helpers layered over ports.Model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/nvrdftd/evolve-ai-infra/pkg/schema"
)

// FormatError reports a model reply that could not be turned into the requested shape.
type FormatError struct {
	Schema  string
	Content string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("model reply does not match %s: %v", e.Schema, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Format pairs a compiled schema with its request form.
type Format[T any] struct {
	schema *schema.Schema
}

// NewFormat reflects the schema of T under name.
func NewFormat[T any](name string) (*Format[T], error) {
	s, err := schema.Compile(name, schema.Reflect[T]())
	if err != nil {
		return nil, err
	}
	return &Format[T]{schema: s}, nil
}

// MustFormat is like NewFormat but panics on error.
func MustFormat[T any](name string) *Format[T] {
	f, err := NewFormat[T](name)
	if err != nil {
		panic(err)
	}
	return f
}

// Request returns the response format to send to a model.
func (f *Format[T]) Request() *ports.ResponseFormat {
	return &ports.ResponseFormat{Name: f.schema.Name(), Schema: f.schema.Document()}
}

// Parse repairs, validates and decodes content.
func (f *Format[T]) Parse(content string) (T, error) {
	var out T
	raw := stripFence(content)
	doc, err := f.schema.ValidateJSON([]byte(raw))
	if err != nil {
		repaired, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return out, &FormatError{Schema: f.schema.Name(), Content: content, Err: err}
		}
		doc, err = f.schema.ValidateJSON([]byte(repaired))
		if err != nil {
			return out, &FormatError{Schema: f.schema.Name(), Content: content, Err: err}
		}
	}

	// Round-trip through JSON so struct tags drive decoding.
	b, err := json.Marshal(doc)
	if err != nil {
		return out, &FormatError{Schema: f.schema.Name(), Content: content, Err: err}
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, &FormatError{Schema: f.schema.Name(), Content: content, Err: err}
	}
	return out, nil
}

// Complete asks m for a reply in this format. A non-conforming reply is retried
// up to retries more times, each time telling the model what was wrong.
// The returned message is the last raw reply.
func (f *Format[T]) Complete(ctx context.Context, m ports.Model, msgs []domain.Message, retries int) (T, domain.Message, error) {
	var zero T
	conversation := append([]domain.Message(nil), msgs...)
	for attempt := 0; ; attempt++ {
		reply, err := m.Complete(ctx, ports.CompletionRequest{Messages: conversation, Format: f.Request()})
		if err != nil {
			return zero, domain.Message{}, err
		}
		out, err := f.Parse(reply.Content)
		if err == nil {
			return out, reply, nil
		}
		if attempt >= retries || ctx.Err() != nil {
			return zero, reply, err
		}
		conversation = append(conversation, reply, domain.HumanMessage(
			"Your previous reply was rejected: "+err.Error()+". Reply with a single JSON document that matches the schema."))
	}
}

// Structured is a one-shot form of Format.Complete without retries.
func Structured[T any](ctx context.Context, m ports.Model, name string, msgs []domain.Message) (T, error) {
	f, err := NewFormat[T](name)
	if err != nil {
		var zero T
		return zero, err
	}
	out, _, err := f.Complete(ctx, m, msgs, 0)
	return out, err
}

// stripFence removes a surrounding markdown code fence, which models add despite instructions.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
