package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Outcome is the terminal result of a Run.
type Outcome struct {
	RunID  string
	Status domain.RunStatus
	State  domain.State
	Err    error
}

// Run is one independent execution of a graph.
type Run struct {
	id     string
	events  chan domain.Event
	ctx     context.Context
	cancel  context.CancelFunc
	abandon time.Duration
	done    chan struct{}

	mu     sync.Mutex
	status domain.RunStatus
	state  domain.State
	err    error
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Events streams deltas followed by exactly one terminal event, then closes.
func (r *Run) Events() <-chan domain.Event { return r.events }

// Done is closed once the terminal event has been emitted.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel withdraws interest in the run. It is safe to call more than once.
// Any node result still in flight is discarded.
func (r *Run) Cancel() { r.cancel() }

// Status returns the current lifecycle position.
func (r *Run) Status() domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Wait drains the remaining events and returns the outcome.
// It is for callers that do not consume Events themselves.
func (r *Run) Wait() Outcome {
	for range r.events {
	}
	<-r.done
	return r.Outcome()
}

// Outcome returns the current outcome. The state is the one accumulated so far
// until the run reaches a terminal status.
func (r *Run) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Outcome{
		RunID:  r.id,
		Status: r.status,
		State:  r.state.Clone(),
		Err:    r.err,
	}
}

func (r *Run) snapshot() domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

func (r *Run) setState(s domain.State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// finish records the terminal status, emits the terminal event and closes the stream.
func (r *Run) finish(ev domain.Event) {
	ev.RunID = r.id

	r.mu.Lock()
	switch ev.Type {
	case domain.EventCompleted:
		r.status = domain.StatusCompleted
	case domain.EventCancelled:
		r.status = domain.StatusCancelled
	default:
		r.status = domain.StatusFailed
	}
	if ev.State != nil {
		r.state = *ev.State
	} else {
		s := r.state.Clone()
		ev.State = &s
	}
	r.err = ev.Err
	r.mu.Unlock()

	select {
	case r.events <- ev:
	case <-r.ctx.Done():
		// A cancelling caller may have stopped reading.
		t := time.NewTimer(r.abandon)
		select {
		case r.events <- ev:
		case <-t.C:
		}
		t.Stop()
	}
	close(r.events)
	close(r.done)
	r.cancel()
}
