package graph

import (
	"context"
	"fmt"
	"maps"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// END is the virtual destination that completes a run.
const END = "__end__"

// Handler is the body of a node. It receives a snapshot of the state and returns
// the partial update to merge. Handlers may block and must honor ctx.
type Handler func(ctx context.Context, state domain.State) (domain.Update, error)

// Router picks the label of the next destination from the post-merge state.
// Routers must be pure and fast.
type Router func(state domain.State) string

// Limit bounds how many times a conditional edge may route back into a cycle.
type Limit struct {
	// Max is the number of looping routes allowed. It must be positive.
	Max int
	// Exit is the label taken once Max is exhausted. Empty means the run fails instead.
	Exit string
}

// EdgeOption configures a conditional edge.
type EdgeOption func(*conditionalSpec)

// LoopLimit declares the iteration cap of a conditional edge that closes a cycle.
func LoopLimit(max int, exitLabel string) EdgeOption {
	return func(c *conditionalSpec) {
		c.limit = &Limit{Max: max, Exit: exitLabel}
	}
}

type conditionalSpec struct {
	router Router
	labels map[string]string
	limit  *Limit
}

// Builder manages the graph construction.
// It is not safe for concurrent use; the compiled Graph is.
type Builder struct {
	name      string
	entry     string
	order     []string
	nodes     map[string]Handler
	edges     map[string][]string
	conds     map[string][]*conditionalSpec
	terminals map[string]bool
	fields    map[string]Reducer
	errs      []error
}

// New creates a new graph builder.
func New(name string) *Builder {
	return &Builder{
		name:      name,
		nodes:     make(map[string]Handler),
		edges:     make(map[string][]string),
		conds:     make(map[string][]*conditionalSpec),
		terminals: make(map[string]bool),
		fields:    make(map[string]Reducer),
	}
}

// AddNode registers a named node.
func (b *Builder) AddNode(name string, handler Handler) *Builder {
	switch {
	case name == "":
		b.errs = append(b.errs, &BuildError{Reason: "node name is empty"})
	case name == END:
		b.errs = append(b.errs, &BuildError{Node: name, Reason: "node name is reserved"})
	case handler == nil:
		b.errs = append(b.errs, &BuildError{Node: name, Reason: "handler is nil"})
	default:
		if _, dup := b.nodes[name]; dup {
			b.errs = append(b.errs, &BuildError{Node: name, Reason: "duplicate node"})
			return b
		}
		b.nodes[name] = handler
		b.order = append(b.order, name)
	}
	return b
}

// AddEdge adds an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges[from] = append(b.edges[from], to)
	return b
}

// AddConditionalEdge adds a router-driven transition.
// labels maps every label the router may return to a node name or END.
func (b *Builder) AddConditionalEdge(from string, router Router, labels map[string]string, opts ...EdgeOption) *Builder {
	spec := &conditionalSpec{router: router, labels: maps.Clone(labels)}
	for _, opt := range opts {
		opt(spec)
	}
	b.conds[from] = append(b.conds[from], spec)
	return b
}

// SetEntry sets the first node of every run.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// AddTerminal marks a node whose completion completes the run.
func (b *Builder) AddTerminal(name string) *Builder {
	b.terminals[name] = true
	return b
}

// DeclareField registers the reducer of an additional state field.
func (b *Builder) DeclareField(name string, reducer Reducer) *Builder {
	switch {
	case name == "" || name == FieldMessages || name == FieldCallCount:
		b.errs = append(b.errs, &BuildError{Reason: fmt.Sprintf("field name %q is reserved", name)})
	case reducer == nil:
		b.errs = append(b.errs, &BuildError{Reason: fmt.Sprintf("field %q has no reducer", name)})
	default:
		if _, dup := b.fields[name]; dup {
			b.errs = append(b.errs, &BuildError{Reason: fmt.Sprintf("field %q declared twice", name)})
			return b
		}
		b.fields[name] = reducer
	}
	return b
}

// DeclareKey registers the reducer of a typed field.
func DeclareKey[T any](b *Builder, key domain.Key[T], reducer Reducer) *Builder {
	return b.DeclareField(key.Name(), reducer)
}
