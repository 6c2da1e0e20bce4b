package evolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/internal/runtime"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/nvrdftd/evolve-ai-infra/pkg/runner"
)

type (
	// Run is one execution of a graph.
	Run = runtime.Run
	// Outcome is the terminal result of a Run.
	Outcome = runtime.Outcome

	CancelledError = runtime.CancelledError
	RouteError     = runtime.RouteError
	HandlerError   = runtime.HandlerError
	LoopLimitError = runtime.LoopLimitError
	PanicError     = runtime.PanicError
)

// ErrCancelled matches every cancellation outcome via errors.Is.
var ErrCancelled = runtime.ErrCancelled

// PublicError describes a run failure without its cause, for responses and records
// that leave the process.
func PublicError(err error) string { return runtime.Public(err) }

// RunObserver is told about every finished run.
type RunObserver interface {
	ObserveRun(graph string, status domain.RunStatus)
}

// Engine is the high-level entry point: it binds one compiled graph to an executor
// and records finished runs.
type Engine struct {
	graph       *graph.Graph
	exec        *runtime.Executor
	store       ports.RunStore
	observer    RunObserver
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	buffer      int
	saveTimeout time.Duration
	now         func() time.Time
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithRunStore persists a record of every finished run.
func WithRunStore(store ports.RunStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithRunObserver reports run outcomes, for example to metrics.
func WithRunObserver(o RunObserver) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithEventBuffer sets the capacity of each run's event stream.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		e.buffer = n
	}
}

// New binds a compiled graph to a new executor.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	eng := &Engine{
		graph:       g,
		buffer:      16,
		saveTimeout: 5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	eng.exec = runtime.NewExecutor(
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithEventBuffer(eng.buffer),
	)
	return eng, nil
}

// Graph returns the compiled graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Runs returns the run store, or nil when runs are not recorded.
func (e *Engine) Runs() ports.RunStore { return e.store }

// Start begins a run from initial and returns immediately.
// Cancelling ctx cancels the run.
func (e *Engine) Start(ctx context.Context, initial domain.State) *Run {
	started := e.now()
	run := e.exec.Start(ctx, e.graph, initial)
	if e.store != nil || e.observer != nil {
		go e.record(context.WithoutCancel(ctx), run, started)
	}
	return run
}

// Invoke starts a run whose state holds a single human message.
// The message is sanitized first; rejected input starts no run.
func (e *Engine) Invoke(ctx context.Context, message string) (*Run, error) {
	clean, err := runner.SanitizeInput(message)
	if err != nil {
		return nil, err
	}
	return e.Start(ctx, domain.NewState(domain.HumanMessage(clean))), nil
}

// Execute runs to completion and returns the outcome.
func (e *Engine) Execute(ctx context.Context, initial domain.State) Outcome {
	return e.Start(ctx, initial).Wait()
}

func (e *Engine) record(ctx context.Context, run *Run, started time.Time) {
	<-run.Done()
	out := run.Outcome()
	if e.observer != nil {
		e.observer.ObserveRun(e.graph.Name(), out.Status)
	}
	if e.store == nil {
		return
	}

	rec := domain.RunRecord{
		ID:         out.RunID,
		Graph:      e.graph.Name(),
		Status:     out.Status,
		State:      out.State,
		StartedAt:  started.UTC(),
		FinishedAt: e.now().UTC(),
	}
	if out.Err != nil {
		// Records are served to clients; the cause stays in the logs.
		rec.Error = runtime.Public(out.Err)
		e.logger.ErrorContext(ctx, "run finished with error", "run_id", rec.ID, "status", rec.Status, "error", out.Err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.saveTimeout)
	defer cancel()
	if err := e.store.Save(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "failed to save run record", "run_id", rec.ID, "error", err)
	}
}
