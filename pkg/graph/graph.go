package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// BuildError reports a structural defect found by Compile.
type BuildError struct {
	Node   string
	Edge   string
	Reason string
}

func (e *BuildError) Error() string {
	switch {
	case e.Edge != "":
		return fmt.Sprintf("graph build: edge %s: %s", e.Edge, e.Reason)
	case e.Node != "":
		return fmt.Sprintf("graph build: node %q: %s", e.Node, e.Reason)
	default:
		return "graph build: " + e.Reason
	}
}

// Conditional is the compiled form of a conditional edge.
type Conditional struct {
	from    string
	router  Router
	labels  map[string]string
	limit   *Limit
	looping map[string]bool
}

// From returns the source node.
func (c *Conditional) From() string { return c.from }

// Route evaluates the router.
func (c *Conditional) Route(state domain.State) string { return c.router(state) }

// Destination resolves a label.
func (c *Conditional) Destination(label string) (string, bool) {
	dest, ok := c.labels[label]
	return dest, ok
}

// Labels returns the declared labels in sorted order.
func (c *Conditional) Labels() []string {
	return slices.Sorted(maps.Keys(c.labels))
}

// Loops reports whether taking label re-enters a cycle through the source node.
func (c *Conditional) Loops(label string) bool { return c.looping[label] }

// Limit returns the loop limit, if declared.
func (c *Conditional) Limit() (Limit, bool) {
	if c.limit == nil {
		return Limit{}, false
	}
	return *c.limit, true
}

// EdgeInfo describes one transition for introspection.
type EdgeInfo struct {
	From  string
	To    string
	Label string // empty for unconditional edges
	Loop  bool
}

// Graph is an immutable, validated node graph. It is safe for concurrent runs.
type Graph struct {
	name      string
	entry     string
	order     []string
	nodes     map[string]Handler
	edges     map[string]string
	conds     map[string]*Conditional
	terminals map[string]bool
	fields    map[string]Reducer
}

// Compile validates the builder and produces an immutable Graph.
// On failure no graph is returned and the error wraps one *BuildError per defect.
func (b *Builder) Compile() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	g := &Graph{
		name:      b.name,
		entry:     b.entry,
		order:     slices.Clone(b.order),
		nodes:     maps.Clone(b.nodes),
		edges:     make(map[string]string),
		conds:     make(map[string]*Conditional),
		terminals: maps.Clone(b.terminals),
		fields:    maps.Clone(b.fields),
	}

	var errs []error
	fail := func(err *BuildError) { errs = append(errs, err) }

	// 1. Entry and terminal declarations
	if b.entry == "" {
		fail(&BuildError{Reason: "entry node not set"})
	} else if _, ok := b.nodes[b.entry]; !ok {
		fail(&BuildError{Node: b.entry, Reason: "entry node is not registered"})
	}
	for _, t := range slices.Sorted(maps.Keys(b.terminals)) {
		if _, ok := b.nodes[t]; !ok {
			fail(&BuildError{Node: t, Reason: "terminal node is not registered"})
		}
	}

	// 2. Edge endpoints and edge-kind exclusivity
	sources := slices.Sorted(maps.Keys(b.edges))
	for from := range b.conds {
		if !slices.Contains(sources, from) {
			sources = append(sources, from)
		}
	}
	slices.Sort(sources)

	for _, from := range sources {
		if _, ok := b.nodes[from]; !ok {
			fail(&BuildError{Node: from, Reason: "edge source is not registered"})
			continue
		}
		plain, conds := b.edges[from], b.conds[from]
		switch {
		case len(plain) > 0 && len(conds) > 0:
			fail(&BuildError{Node: from, Reason: "node has both an unconditional and a conditional outgoing edge"})
			continue
		case len(plain) > 1:
			fail(&BuildError{Node: from, Reason: "node has more than one unconditional outgoing edge"})
			continue
		case len(conds) > 1:
			fail(&BuildError{Node: from, Reason: "node has more than one conditional outgoing edge"})
			continue
		}
		if b.terminals[from] {
			fail(&BuildError{Node: from, Reason: "terminal node must not have outgoing edges"})
			continue
		}

		if len(plain) == 1 {
			to := plain[0]
			if !b.known(to) {
				fail(&BuildError{Edge: from + "->" + to, Reason: "destination is not registered"})
				continue
			}
			g.edges[from] = to
			continue
		}

		spec := conds[0]
		if spec.router == nil {
			fail(&BuildError{Node: from, Reason: "conditional edge has no router"})
			continue
		}
		if len(spec.labels) == 0 {
			fail(&BuildError{Node: from, Reason: "conditional edge has no labels"})
			continue
		}
		valid := true
		for _, label := range slices.Sorted(maps.Keys(spec.labels)) {
			to := spec.labels[label]
			if !b.known(to) {
				fail(&BuildError{Edge: fmt.Sprintf("%s-[%s]->%s", from, label, to), Reason: "destination is not registered"})
				valid = false
			}
		}
		if !valid {
			continue
		}
		g.conds[from] = &Conditional{
			from:    from,
			router:  spec.router,
			labels:  spec.labels,
			limit:   spec.limit,
			looping: make(map[string]bool),
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// 3. Dead ends
	for _, name := range g.order {
		if g.terminals[name] {
			continue
		}
		if _, ok := g.edges[name]; ok {
			continue
		}
		if _, ok := g.conds[name]; ok {
			continue
		}
		fail(&BuildError{Node: name, Reason: "node has no outgoing edge and is not terminal"})
	}

	// 4. Reachability from entry
	reached := g.reachableFrom(g.entry)
	for _, name := range g.order {
		if !reached[name] {
			fail(&BuildError{Node: name, Reason: "node is unreachable from entry " + g.entry})
		}
	}

	// 5. Every node can reach completion
	finishing := g.canFinish()
	for _, name := range g.order {
		if reached[name] && !finishing[name] {
			fail(&BuildError{Node: name, Reason: "node has no path to a terminal"})
		}
	}

	// 6. Cycles through conditional edges must be bounded
	for _, from := range slices.Sorted(maps.Keys(g.conds)) {
		c := g.conds[from]
		for label, to := range c.labels {
			if to != END && (to == from || g.reachableFrom(to)[from]) {
				c.looping[label] = true
			}
		}
		if len(c.looping) == 0 {
			continue
		}
		if c.limit == nil {
			fail(&BuildError{Node: from, Reason: "conditional edge closes a cycle but declares no loop limit"})
			continue
		}
		if c.limit.Max <= 0 {
			fail(&BuildError{Node: from, Reason: fmt.Sprintf("loop limit must be positive, got %d", c.limit.Max)})
		}
		if exit := c.limit.Exit; exit != "" {
			if _, ok := c.labels[exit]; !ok {
				fail(&BuildError{Node: from, Reason: fmt.Sprintf("loop exit label %q is not declared", exit)})
			} else if c.looping[exit] {
				fail(&BuildError{Node: from, Reason: fmt.Sprintf("loop exit label %q re-enters the cycle", exit)})
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

func (b *Builder) known(name string) bool {
	if name == END {
		return true
	}
	_, ok := b.nodes[name]
	return ok
}

// successors lists the node destinations of name, END excluded.
func (g *Graph) successors(name string) []string {
	if to, ok := g.edges[name]; ok {
		if to == END {
			return nil
		}
		return []string{to}
	}
	c, ok := g.conds[name]
	if !ok {
		return nil
	}
	var out []string
	for _, label := range c.Labels() {
		if to := c.labels[label]; to != END {
			out = append(out, to)
		}
	}
	return out
}

func (g *Graph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.successors(n) {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

func (g *Graph) reachesEnd(name string) bool {
	if g.terminals[name] {
		return true
	}
	if to, ok := g.edges[name]; ok {
		return to == END
	}
	if c, ok := g.conds[name]; ok {
		for _, to := range c.labels {
			if to == END {
				return true
			}
		}
	}
	return false
}

// canFinish computes the set of nodes with a path to END or a terminal node.
func (g *Graph) canFinish() map[string]bool {
	done := map[string]bool{}
	changed := true
	for changed {
		changed = false
		for _, name := range g.order {
			if done[name] {
				continue
			}
			if g.reachesEnd(name) || slices.ContainsFunc(g.successors(name), func(s string) bool { return done[s] }) {
				done[name] = true
				changed = true
			}
		}
	}
	return done
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry node.
func (g *Graph) Entry() string { return g.entry }

// Nodes returns node names in registration order.
func (g *Graph) Nodes() []string { return slices.Clone(g.order) }

// Handler returns the body of a node.
func (g *Graph) Handler(name string) (Handler, bool) {
	h, ok := g.nodes[name]
	return h, ok
}

// IsTerminal reports whether completing name completes the run.
func (g *Graph) IsTerminal(name string) bool { return name == END || g.terminals[name] }

// Next returns the unconditional successor of a node.
func (g *Graph) Next(from string) (string, bool) {
	to, ok := g.edges[from]
	return to, ok
}

// Conditional returns the conditional edge leaving a node.
func (g *Graph) Conditional(from string) (*Conditional, bool) {
	c, ok := g.conds[from]
	return c, ok
}

// Fields returns the declared additional field names, sorted.
func (g *Graph) Fields() []string {
	return slices.Sorted(maps.Keys(g.fields))
}

// Edges lists every transition, in node registration order.
func (g *Graph) Edges() []EdgeInfo {
	var out []EdgeInfo
	for _, from := range g.order {
		if to, ok := g.edges[from]; ok {
			out = append(out, EdgeInfo{From: from, To: to})
			continue
		}
		if c, ok := g.conds[from]; ok {
			for _, label := range c.Labels() {
				out = append(out, EdgeInfo{From: from, To: c.labels[label], Label: label, Loop: c.looping[label]})
			}
		}
	}
	return out
}

// Merge applies an update to a state through the field reducers.
// The input state is not modified.
func (g *Graph) Merge(state domain.State, update domain.Update) (domain.State, error) {
	out := state.Clone()

	count, err := SumCallCount(out.CallCount, update.CallCount)
	if err != nil {
		return state, err
	}
	out.CallCount = count
	out.Messages = ConcatMessages(out.Messages, update.Messages)

	for _, name := range slices.Sorted(maps.Keys(update.Values)) {
		reducer, ok := g.fields[name]
		if !ok {
			return state, &FieldError{Field: name, Reason: "field is not declared on graph " + g.name}
		}
		current := out.Values[name]
		merged, err := reducer(current, update.Values[name])
		if err != nil {
			return state, &FieldError{Field: name, Reason: "reducer failed", Err: err}
		}
		out.Values[name] = merged
	}
	return out, nil
}
