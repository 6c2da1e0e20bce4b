package ports

import (
	"context"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// RunStore persists finished runs so they can be inspected after the stream closed.
type RunStore interface {
	// Save persists a run record, replacing any record with the same ID.
	Save(ctx context.Context, record domain.RunRecord) error

	// Load retrieves a run record.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (domain.RunRecord, error)

	// List returns the IDs of the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]string, error)

	// Delete removes a run record.
	Delete(ctx context.Context, runID string) error
}
