package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.RunRecord
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.RunRecord),
	}
}

// Save persists the record in memory.
func (s *Store) Save(ctx context.Context, record domain.RunRecord) error {
	// Copy to ensure isolation, similar to serialization
	record.State = record.State.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[record.ID] = record
	return nil
}

// Load retrieves the record from memory.
func (s *Store) Load(ctx context.Context, runID string) (domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.data[runID]
	if !ok {
		return domain.RunRecord{}, domain.ErrRunNotFound
	}

	// Copy on read so the caller can't mutate store state through shared slices
	record.State = record.State.Clone()
	return record, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns the most recent run IDs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	records := make([]domain.RunRecord, 0, len(s.data))
	for _, r := range s.data {
		records = append(records, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(records, func(a, b domain.RunRecord) int {
		return b.FinishedAt.Compare(a.FinishedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids, nil
}
