package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Remediator records actions instead of applying them (dry run).
type Remediator struct {
	mu      sync.Mutex
	applied []domain.Action
	// Fail, when set, is returned for every action.
	Fail error
}

// NewRemediator creates a dry-run remediator.
func NewRemediator() *Remediator {
	return &Remediator{}
}

// Apply records the action.
func (r *Remediator) Apply(ctx context.Context, action domain.Action) error {
	if !action.Kind.Valid() {
		return fmt.Errorf("unsupported remedy type %q", action.Kind)
	}
	if r.Fail != nil {
		return r.Fail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, action)
	return nil
}

// Applied returns the recorded actions in order.
func (r *Remediator) Applied() []domain.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Action(nil), r.applied...)
}
