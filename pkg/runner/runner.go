package runner

import (
	"context"
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Stream feeds every event to h until the terminal event, which it returns.
//
// A handler error stops forwarding but the stream is still drained, since a run
// does not progress while nobody reads it. The run result is reported by the
// terminal event; the returned error is only about delivery.
func Stream(ctx context.Context, events <-chan domain.Event, h Handler) (domain.Event, error) {
	var (
		final   domain.Event
		seen    bool
		handErr error
	)
	for ev := range events {
		if handErr == nil {
			if err := h.Handle(ctx, ev); err != nil {
				handErr = fmt.Errorf("handle %s event: %w", ev.Type, err)
			}
		}
		if ev.Terminal() {
			final, seen = ev, true
		}
	}
	if handErr != nil {
		return final, handErr
	}
	if !seen {
		return final, ErrNoTerminalEvent
	}
	return final, nil
}

// Multi fans an event out to several handlers in order. The first error wins.
func Multi(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, ev domain.Event) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
