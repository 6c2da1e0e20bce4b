package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// TextHandler writes a readable transcript of the run.
type TextHandler struct {
	Writer   io.Writer
	Renderer ContentRenderer
	// Verbose also prints system prompts and value changes.
	Verbose bool
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithVerbose prints system messages and state values as well.
func WithVerbose(v bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.Verbose = v
	}
}

// NewTextHandler creates a handler for standard text output.
func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{Writer: w}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) Handle(_ context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventDelta:
		return h.delta(ev.Delta)
	case domain.EventCompleted:
		calls := 0
		if ev.State != nil {
			calls = ev.State.CallCount
		}
		_, err := fmt.Fprintf(h.Writer, "\n✔ completed (model calls: %d)\n", calls)
		return err
	case domain.EventFailed:
		_, err := fmt.Fprintf(h.Writer, "\n✘ failed: %v\n", ev.Err)
		return err
	case domain.EventCancelled:
		_, err := fmt.Fprintf(h.Writer, "\n■ cancelled: %v\n", ev.Err)
		return err
	}
	return nil
}

func (h *TextHandler) delta(d *domain.StateDelta) error {
	if d == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "── %s (step %d)\n", d.Node, d.Step)
	for _, m := range d.Messages {
		switch m.Role {
		case domain.RoleSystem:
			if !h.Verbose {
				continue
			}
			fmt.Fprintf(&b, "[system] %s\n", m.Content)
		case domain.RoleAssistant:
			if m.Content != "" {
				content, err := h.render(m.Content)
				if err != nil {
					return err
				}
				fmt.Fprintf(&b, "%s\n", strings.TrimRight(content, "\n"))
			}
			for _, c := range m.ToolCalls {
				fmt.Fprintf(&b, "→ %s(%s)\n", c.Name, string(c.Arguments))
			}
		case domain.RoleTool:
			mark := "←"
			if m.IsError {
				mark = "✘"
			}
			fmt.Fprintf(&b, "%s %s: %s\n", mark, m.Name, m.Content)
		default:
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
	}
	if h.Verbose {
		for k, v := range d.Values {
			fmt.Fprintf(&b, "  %s = %v\n", k, v)
		}
	}
	_, err := io.WriteString(h.Writer, b.String())
	return err
}

func (h *TextHandler) render(content string) (string, error) {
	if h.Renderer == nil {
		return content, nil
	}
	return h.Renderer(content)
}
