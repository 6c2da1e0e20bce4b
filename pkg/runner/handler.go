package runner

import (
	"context"
	"errors"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Handler receives the events of a run.
type Handler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev domain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev domain.Event) error { return f(ctx, ev) }

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// ErrNoTerminalEvent is returned when a stream closes without a terminal event.
var ErrNoTerminalEvent = errors.New("event stream closed without a terminal event")
