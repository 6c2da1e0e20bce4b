package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/nvrdftd/evolve-ai-infra/internal/textindex"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Knowledge implements ports.KnowledgeStore in memory.
// Passages are ranked by the number of query terms they contain.
type Knowledge struct {
	mu   sync.RWMutex
	docs []indexed
	byID map[string]int
}

type indexed struct {
	doc   domain.Document
	terms map[string]bool
}

// NewKnowledge creates a knowledge store seeded with docs.
func NewKnowledge(docs ...domain.Document) *Knowledge {
	k := &Knowledge{byID: make(map[string]int)}
	if len(docs) > 0 {
		_ = k.Add(context.Background(), docs)
	}
	return k
}

// Add stores documents. A document whose ID is already stored replaces it in place.
func (k *Knowledge) Add(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return domain.ErrNoDocuments
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, d := range docs {
		terms := make(map[string]bool)
		for _, t := range textindex.Terms(d.Text) {
			terms[t] = true
		}
		entry := indexed{doc: d, terms: terms}
		if d.ID != "" {
			if i, ok := k.byID[d.ID]; ok {
				k.docs[i] = entry
				continue
			}
			k.byID[d.ID] = len(k.docs)
		}
		k.docs = append(k.docs, entry)
	}
	return nil
}

// Search returns up to topK passages sharing at least one term with query.
func (k *Knowledge) Search(ctx context.Context, query string, topK int) ([]string, error) {
	terms := textindex.Terms(query)

	type hit struct {
		text  string
		score int
		order int
	}
	k.mu.RLock()
	var hits []hit
	for i, d := range k.docs {
		score := 0
		for _, t := range terms {
			if d.terms[t] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{text: d.doc.Text, score: score, order: i})
		}
	}
	k.mu.RUnlock()

	slices.SortStableFunc(hits, func(a, b hit) int { return b.score - a.score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.text
	}
	return out, nil
}

// Documents returns a copy of everything stored, in insertion order.
func (k *Knowledge) Documents() []domain.Document {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]domain.Document, len(k.docs))
	for i, d := range k.docs {
		out[i] = d.doc
	}
	return out
}
