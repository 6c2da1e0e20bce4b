package memory

import (
	"context"
	"sync"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Metrics is a scripted ports.MetricsSource.
// Each query returns its queued series in order; the last one repeats.
type Metrics struct {
	mu      sync.Mutex
	results map[string][]domain.Series
	calls   map[string]int
}

// NewMetrics creates an empty scripted source.
func NewMetrics() *Metrics {
	return &Metrics{
		results: make(map[string][]domain.Series),
		calls:   make(map[string]int),
	}
}

// Set queues the results for expr.
func (m *Metrics) Set(expr string, series ...domain.Series) *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range series {
		series[i].Query = expr
	}
	m.results[expr] = series
	return m
}

// Query returns the next queued series for expr, or domain.ErrNoData.
func (m *Metrics) Query(ctx context.Context, expr string) (domain.Series, error) {
	if err := ctx.Err(); err != nil {
		return domain.Series{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	queued := m.results[expr]
	if len(queued) == 0 {
		return domain.Series{Query: expr}, domain.ErrNoData
	}
	i := min(m.calls[expr], len(queued)-1)
	m.calls[expr]++
	return queued[i], nil
}

// Calls reports how often expr was queried.
func (m *Metrics) Calls(expr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[expr]
}
