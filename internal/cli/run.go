package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nvrdftd/evolve-ai-infra/internal/presentation/tui"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/runner"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Message string
	JSON    bool
	Verbose bool
	// Output defaults to os.Stdout. Markdown rendering is only used on a terminal.
	Output io.Writer
}

// ErrRunFailed marks a run that ended failed or cancelled. The transcript already
// shows the cause.
var ErrRunFailed = errors.New("run did not complete")

// Result is the end of a run and the nodes it went through, in order.
type Result struct {
	Final   domain.Event
	Visited []string
}

// Execute invokes one message and streams the run to the output.
func Execute(ctx context.Context, c *Components, opts RunOptions) (Result, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var h runner.Handler
	if opts.JSON {
		h = runner.NewJSONHandler(out)
	} else {
		textOpts := []runner.TextHandlerOption{runner.WithVerbose(opts.Verbose)}
		if f, ok := out.(*os.File); ok && tui.IsTerminal(f) {
			if render, err := tui.NewRenderer(f); err == nil {
				textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
			}
		}
		h = runner.NewTextHandler(out, textOpts...)
	}

	var res Result
	trace := runner.HandlerFunc(func(_ context.Context, ev domain.Event) error {
		if ev.Type == domain.EventDelta && ev.Delta != nil {
			res.Visited = append(res.Visited, ev.Delta.Node)
		}
		return nil
	})

	run, err := c.Engine.Invoke(ctx, opts.Message)
	if err != nil {
		return res, fmt.Errorf("invalid message: %w", err)
	}
	res.Final, err = runner.Stream(ctx, run.Events(), runner.Multi(trace, h))
	if err != nil {
		return res, err
	}
	if res.Final.Type != domain.EventCompleted {
		return res, ErrRunFailed
	}
	return res, nil
}
