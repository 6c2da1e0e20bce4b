package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
)

// Executor starts Runs against compiled graphs.
// One Executor may drive any number of concurrent Runs; Runs share no mutable state.
type Executor struct {
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	buffer  int
	abandon time.Duration
	newID   func() string
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithEventBuffer sets the capacity of each Run's event channel (default 16).
func WithEventBuffer(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.buffer = n
		}
	}
}

// WithAbandonTimeout bounds how long a cancelled run waits for a reader of its
// terminal event before closing the stream anyway (default 10s).
func WithAbandonTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.abandon = d
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewExecutor creates an executor. Without options it logs nowhere and has no hooks.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		buffer:  16,
		abandon: 10 * time.Second,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a Run at the graph's entry node and returns immediately.
// The caller must drain Run.Events (or call Run.Wait) until it closes, unless it
// cancels the run, after which undelivered events are bounded by WithAbandonTimeout.
func (e *Executor) Start(ctx context.Context, g *graph.Graph, initial domain.State) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:      e.newID(),
		events:  make(chan domain.Event, e.buffer),
		ctx:     runCtx,
		cancel:  cancel,
		abandon: e.abandon,
		done:    make(chan struct{}),
		status:  domain.StatusRunning,
		state:   initial.Clone(),
	}
	if g == nil {
		go r.finish(domain.Event{Type: domain.EventFailed, Err: errors.New("graph is nil")})
		return r
	}

	d := &driver{
		exec:   e,
		graph:  g,
		run:    r,
		logger: e.logger.With("run_id", r.id, "graph", g.Name()),
		loops:  make(map[string]int),
	}
	go d.loop(runCtx)
	return r
}

type nodeResult struct {
	update domain.Update
	err    error
}

// driver owns the mutable bookkeeping of a single Run.
// Only its goroutine touches state, cursor and loop counters.
type driver struct {
	exec   *Executor
	graph  *graph.Graph
	run    *Run
	logger *slog.Logger
	loops  map[string]int
}

func (d *driver) loop(ctx context.Context) {
	state := d.run.snapshot()
	cursor := d.graph.Entry()
	d.logger.DebugContext(ctx, "run started", "entry", cursor)

	for step := 1; ; step++ {
		// 1. Observe cancellation before starting any node
		if err := ctx.Err(); err != nil {
			d.cancelled(ctx, state, "", err)
			return
		}

		// 2. Invoke the node and await its result
		update, err := d.invoke(ctx, cursor, step, state)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The in-flight result is discarded, never merged.
			d.cancelled(ctx, state, cursor, ctxErr)
			return
		}
		if err != nil {
			d.failed(ctx, state, &HandlerError{Node: cursor, Step: step, Err: err})
			return
		}

		// 3. Merge through reducers
		next, err := d.graph.Merge(state, update)
		if err != nil {
			d.failed(ctx, state, &HandlerError{Node: cursor, Step: step, Err: err})
			return
		}
		delta := domain.Diff(state, next)
		delta.RunID, delta.Step, delta.Node = d.run.id, step, cursor

		// 4. Stream the delta; a merge is only committed once its delta is delivered
		select {
		case d.run.events <- domain.Event{Type: domain.EventDelta, RunID: d.run.id, Delta: &delta}:
		case <-ctx.Done():
			d.cancelled(ctx, state, cursor, ctx.Err())
			return
		}
		state = next
		d.run.setState(state)

		// 5. Choose the next node on the post-merge state
		if d.graph.IsTerminal(cursor) {
			d.completed(ctx, state)
			return
		}
		dest, err := d.route(ctx, cursor, state)
		if err != nil {
			d.failed(ctx, state, err)
			return
		}
		if dest == graph.END {
			d.completed(ctx, state)
			return
		}
		cursor = dest
	}
}

// invoke runs the handler on its own goroutine so that cancellation can abandon it.
func (d *driver) invoke(ctx context.Context, node string, step int, state domain.State) (domain.Update, error) {
	handler, ok := d.graph.Handler(node)
	if !ok {
		return domain.Update{}, errors.New("node is not registered")
	}

	nodeCtx := domain.ContextWithRun(ctx, domain.RunInfo{RunID: d.run.id, Node: node, Step: step})
	started := d.exec.now()
	d.fireNode(nodeCtx, d.exec.hooks.OnNodeEnter, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: started, Type: domain.EventNodeEnter, RunID: d.run.id},
		Node:      node,
		Step:      step,
	})
	d.logger.DebugContext(ctx, "node enter", "node", node, "step", step)

	results := make(chan nodeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				results <- nodeResult{err: &PanicError{Value: p}}
			}
		}()
		u, err := handler(nodeCtx, state.Clone())
		results <- nodeResult{update: u, err: err}
	}()

	var res nodeResult
	select {
	case res = <-results:
	case <-ctx.Done():
		res = nodeResult{err: ctx.Err()}
	}

	elapsed := d.exec.now().Sub(started)
	d.fireNode(nodeCtx, d.exec.hooks.OnNodeLeave, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: d.exec.now(), Type: domain.EventNodeLeave, RunID: d.run.id},
		Node:      node,
		Step:      step,
		Err:       res.err,
		Duration:  elapsed,
	})
	d.logger.DebugContext(ctx, "node leave", "node", node, "step", step, "duration", elapsed, "error", res.err)
	return res.update, res.err
}

func (d *driver) route(ctx context.Context, from string, state domain.State) (string, error) {
	if to, ok := d.graph.Next(from); ok {
		return to, nil
	}
	cond, ok := d.graph.Conditional(from)
	if !ok {
		// Compile rejects dead ends, so this only guards against misuse.
		return "", &RouteError{Node: from}
	}

	label := cond.Route(state)
	dest, ok := cond.Destination(label)
	if !ok {
		return "", &RouteError{Node: from, Label: label, Allowed: cond.Labels()}
	}
	if !cond.Loops(label) {
		return dest, nil
	}

	limit, _ := cond.Limit()
	d.loops[from]++
	if d.loops[from] <= limit.Max {
		return dest, nil
	}
	if limit.Exit == "" {
		return "", &LoopLimitError{Node: from, Max: limit.Max}
	}
	exit, _ := cond.Destination(limit.Exit)
	d.logger.WarnContext(ctx, "loop limit reached, taking exit", "node", from, "max", limit.Max, "label", label, "exit", limit.Exit)
	return exit, nil
}

func (d *driver) completed(ctx context.Context, state domain.State) {
	d.logger.InfoContext(ctx, "run completed", "messages", len(state.Messages), "call_count", state.CallCount)
	d.run.finish(domain.Event{Type: domain.EventCompleted, State: &state})
}

func (d *driver) failed(ctx context.Context, state domain.State, err error) {
	d.logger.ErrorContext(ctx, "run failed", "error", err)
	d.run.finish(domain.Event{Type: domain.EventFailed, State: &state, Err: err})
}

func (d *driver) cancelled(ctx context.Context, state domain.State, node string, cause error) {
	d.logger.InfoContext(ctx, "run cancelled", "node", node, "cause", cause)
	d.run.finish(domain.Event{Type: domain.EventCancelled, State: &state, Err: &CancelledError{Node: node, Cause: cause}})
}

func (d *driver) fireNode(ctx context.Context, hook func(context.Context, *domain.NodeEvent), e *domain.NodeEvent) {
	if hook != nil {
		hook(ctx, e)
	}
}
