package tool

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/schema"
)

// InvokeFunc is the implementation of a tool.
// It receives arguments that already passed schema validation.
type InvokeFunc func(ctx context.Context, args map[string]any) (any, error)

// Registration describes a callable tool.
type Registration struct {
	Name        string
	Description string
	// Schema is the JSON Schema of the arguments object. Nil accepts any object.
	Schema map[string]any
	Invoke InvokeFunc
}

// namePattern matches the identifiers accepted by model providers.
var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// ValidName reports whether name is an acceptable tool identifier.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

type entry struct {
	reg    Registration
	schema *schema.Schema
}

// Registry manages the available tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// Register adds a tool. Names must be unique and valid identifiers.
func (r *Registry) Register(reg Registration) error {
	if !ValidName(reg.Name) {
		return fmt.Errorf("invalid tool name %q", reg.Name)
	}
	if reg.Invoke == nil {
		return fmt.Errorf("tool %s: invoke function is nil", reg.Name)
	}
	compiled, err := schema.Compile(reg.Name, reg.Schema)
	if err != nil {
		return fmt.Errorf("tool %s: %w", reg.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[reg.Name]; exists {
		return fmt.Errorf("tool %s is already registered", reg.Name)
	}
	r.tools[reg.Name] = &entry{reg: reg, schema: compiled}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(regs ...Registration) *Registry {
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			panic(err)
		}
	}
	return r
}

// lookup rejects names that are not valid identifiers before touching the map,
// since the name comes from model output.
func (r *Registry) lookup(name string) (*entry, bool) {
	if !ValidName(name) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definitions describes the registered tools to a model, sorted by name.
func (r *Registry) Definitions() []domain.Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tool, 0, len(names))
	for _, name := range names {
		e := r.tools[name]
		out = append(out, domain.Tool{
			Name:        name,
			Description: e.reg.Description,
			Parameters:  e.schema.Document(),
		})
	}
	return out
}

// Subset returns a registry holding only the named tools.
// Unknown names are reported as an error.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	out := NewRegistry()
	for _, name := range names {
		e, ok := r.lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
		}
		out.tools[name] = e
	}
	return out, nil
}

// Select returns a registry holding the tools whose names match any of the glob
// patterns (for example "calc_*"). A pattern that matches nothing is an error,
// as is a malformed pattern.
func (r *Registry) Select(patterns ...string) (*Registry, error) {
	out := NewRegistry()
	names := r.Names()
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q", p)
		}
		matched := false
		for _, name := range names {
			if ok, _ := doublestar.Match(p, name); ok {
				e, _ := r.lookup(name)
				out.tools[name] = e
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: no tool matches %q", domain.ErrUnknownTool, p)
		}
	}
	return out, nil
}

// Func builds a registration whose arguments are decoded into T.
// The schema is reflected from T's JSON shape.
func Func[T any](name, description string, fn func(ctx context.Context, in T) (any, error)) Registration {
	return Registration{
		Name:        name,
		Description: description,
		Schema:      schema.Reflect[T](),
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			var in T
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				TagName: "json",
				Result:  &in,
			})
			if err != nil {
				return nil, err
			}
			if err := dec.Decode(args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			return fn(ctx, in)
		},
	}
}
