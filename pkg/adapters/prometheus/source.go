// Package prometheus adapts the Prometheus HTTP API to ports.MetricsSource.
package prometheus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

const (
	// DefaultTimeout matches the budget of a single instant query.
	DefaultTimeout = time.Second
	// DefaultCacheTTL is how long a query result is reused.
	DefaultCacheTTL = 5 * time.Minute
)

// Source queries a Prometheus server.
type Source struct {
	api     v1.API
	timeout time.Duration
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	series  domain.Series
	expires time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithTimeout bounds each query.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCacheTTL sets how long results are cached. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Source) {
		s.ttl = d
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a source for the server at address.
func New(address string, opts ...Option) (*Source, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return NewFromAPI(v1.NewAPI(client), opts...), nil
}

// NewFromAPI creates a source from an existing API client.
func NewFromAPI(a v1.API, opts ...Option) *Source {
	s := &Source{
		api:     a,
		timeout: DefaultTimeout,
		ttl:     DefaultCacheTTL,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		cache:   make(map[string]cached),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query evaluates expr at the current time.
func (s *Source) Query(ctx context.Context, expr string) (domain.Series, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return domain.Series{}, domain.ErrEmptyInput
	}
	if series, ok := s.cached(expr); ok {
		return series, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, warnings, err := s.api.Query(ctx, expr, s.now(), v1.WithTimeout(s.timeout))
	if err != nil {
		return domain.Series{Query: expr}, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	for _, w := range warnings {
		s.logger.WarnContext(ctx, "prometheus warning", "query", expr, "warning", w)
	}

	series := domain.Series{Query: expr, Samples: convert(value)}
	if len(series.Samples) == 0 {
		return series, domain.ErrNoData
	}
	s.store(expr, series)
	return series, nil
}

func (s *Source) cached(expr string) (domain.Series, bool) {
	if s.ttl <= 0 {
		return domain.Series{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[expr]
	if !ok || s.now().After(c.expires) {
		delete(s.cache, expr)
		return domain.Series{}, false
	}
	return c.series, true
}

func (s *Source) store(expr string, series domain.Series) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[expr] = cached{series: series, expires: s.now().Add(s.ttl)}
}

// convert flattens any result type into samples. Range vectors keep their latest point.
func convert(value model.Value) []domain.Sample {
	switch v := value.(type) {
	case model.Vector:
		out := make([]domain.Sample, 0, len(v))
		for _, smp := range v {
			out = append(out, domain.Sample{
				Labels:    labels(smp.Metric),
				Value:     float64(smp.Value),
				Timestamp: smp.Timestamp.Time(),
			})
		}
		return out
	case *model.Scalar:
		return []domain.Sample{{Value: float64(v.Value), Timestamp: v.Timestamp.Time()}}
	case model.Matrix:
		out := make([]domain.Sample, 0, len(v))
		for _, stream := range v {
			if len(stream.Values) == 0 {
				continue
			}
			last := stream.Values[len(stream.Values)-1]
			out = append(out, domain.Sample{
				Labels:    labels(stream.Metric),
				Value:     float64(last.Value),
				Timestamp: last.Timestamp.Time(),
			})
		}
		return out
	}
	return nil
}

func labels(m model.Metric) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = string(v)
	}
	return out
}
