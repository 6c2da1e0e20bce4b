package middleware

import (
	"context"
	"regexp"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.RunStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks state values whose key matches one of the patterns,
// at any depth. Messages are stored as they are.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.RunStore) ports.RunStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, record domain.RunRecord) error {
	// Copy first: the record shares its maps with the run's final state.
	masked := record
	masked.State = record.State.Clone()
	masked.State.Values = deepCopyMap(record.State.Values)
	maskMap(masked.State.Values, m.patterns)

	return m.next.Save(ctx, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (domain.RunRecord, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *piiMiddleware) List(ctx context.Context, limit int) ([]string, error) {
	return m.next.List(ctx, limit)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}
