package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/schema"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// ValidationError reports tool-call arguments rejected by the tool's schema.
// The dispatcher recovers it into an error-carrying tool message.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Dispatcher executes the tool calls of the latest assistant message.
type Dispatcher struct {
	registry    *Registry
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	concurrency int
	newID       func() string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency lets up to n calls of one assistant turn run at once.
// Results keep the order of the calls regardless. The default is 1.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithLifecycleHooks registers the tool call/return hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		concurrency: 1,
		newID:       func() string { return "call_" + ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handler exposes the dispatcher as a graph node.
func (d *Dispatcher) Handler() graph.Handler {
	return d.Handle
}

// Handle dispatches the calls of the most recent assistant message.
// It never fails: every problem becomes an error-carrying tool message.
func (d *Dispatcher) Handle(ctx context.Context, state domain.State) (domain.Update, error) {
	msg, ok := state.LastAssistant()
	if !ok || len(msg.ToolCalls) == 0 {
		return domain.Update{}, nil
	}
	return domain.Update{Messages: d.Dispatch(ctx, msg.ToolCalls)}, nil
}

// Dispatch executes calls and returns one tool message per call, in call order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []domain.ToolCall) []domain.Message {
	results := make([]domain.Message, len(calls))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, call := range calls {
		if call.ID == "" {
			call.ID = d.newID()
		}
		g.Go(func() error {
			results[i] = d.call(ctx, call)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return results
}

func (d *Dispatcher) call(ctx context.Context, call domain.ToolCall) (msg domain.Message) {
	info, _ := domain.RunFromContext(ctx)
	started := time.Now()
	event := &domain.ToolEvent{
		EventBase: domain.EventBase{Timestamp: started, Type: domain.EventToolCall, RunID: info.RunID},
		Node:      info.Node,
		CallID:    call.ID,
		ToolName:  call.Name,
		Input:     call.Arguments,
	}
	if d.hooks.OnToolCall != nil {
		d.hooks.OnToolCall(ctx, event)
	}

	result := d.execute(ctx, call)

	msg = domain.ToolMessage(call.ID, call.Name, render(result), result.IsError)
	if d.hooks.OnToolReturn != nil {
		ret := *event
		ret.Timestamp = time.Now()
		ret.Type = domain.EventToolReturn
		ret.Output = result.Result
		ret.IsError = result.IsError
		ret.Duration = time.Since(started)
		d.hooks.OnToolReturn(ctx, &ret)
	}
	return msg
}

// execute applies the per-call contract: lookup, validate, invoke.
func (d *Dispatcher) execute(ctx context.Context, call domain.ToolCall) (res domain.ToolResult) {
	res = domain.ToolResult{ID: call.ID, Name: call.Name}
	fail := func(err error) domain.ToolResult {
		d.logger.WarnContext(ctx, "tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		res.IsError = true
		res.Error = err.Error()
		return res
	}

	e, ok := d.registry.lookup(call.Name)
	if !ok {
		return fail(fmt.Errorf("%w: %q", domain.ErrUnknownTool, call.Name))
	}

	doc, err := e.schema.ValidateJSON(call.Arguments)
	if err != nil {
		return fail(&ValidationError{Tool: call.Name, Err: err})
	}
	args, ok := doc.(map[string]any)
	if !ok {
		return fail(&ValidationError{Tool: call.Name, Err: &schema.ValidationError{Schema: call.Name, Err: errors.New("arguments must be an object")}})
	}

	defer func() {
		if p := recover(); p != nil {
			res = fail(fmt.Errorf("tool panicked: %v", p))
		}
	}()
	out, err := e.reg.Invoke(ctx, args)
	if err != nil {
		return fail(err)
	}
	res.Result = out
	return res
}

// render turns a result into message content. Strings pass through; other values are JSON.
func render(res domain.ToolResult) string {
	if res.IsError {
		return "Error: " + res.Error
	}
	switch v := res.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	b, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf("%v", res.Result)
	}
	return string(b)
}

// Route selects toolsLabel while the latest message requests tool calls and doneLabel otherwise.
func Route(toolsLabel, doneLabel string) graph.Router {
	return func(state domain.State) string {
		if last, ok := state.LastMessage(); ok && last.HasToolCalls() {
			return toolsLabel
		}
		return doneLabel
	}
}
