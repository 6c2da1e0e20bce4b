package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/nvrdftd/evolve-ai-infra/internal/textindex"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Knowledge implements ports.KnowledgeStore using Redis.
// Each document is a hash; each index term is a set of document sequence numbers.
// Document IDs map to their sequence number so re-adding a document replaces it.
type Knowledge struct {
	client *backend.Client
	prefix string
}

// NewKnowledge creates a knowledge store under prefix (default "evolve:kb:").
func NewKnowledge(client *backend.Client, prefix string) *Knowledge {
	if prefix == "" {
		prefix = "evolve:kb:"
	}
	return &Knowledge{client: client, prefix: prefix}
}

func (k *Knowledge) docKey(seq int64) string { return k.prefix + "doc:" + strconv.FormatInt(seq, 10) }
func (k *Knowledge) termKey(term string) string { return k.prefix + "term:" + term }
func (k *Knowledge) seqKey() string            { return k.prefix + "seq" }
func (k *Knowledge) idsKey() string            { return k.prefix + "ids" }

// Add indexes documents. Documents with an ID already stored are replaced,
// including their old term memberships.
func (k *Knowledge) Add(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return domain.ErrNoDocuments
	}

	seqs, err := k.assign(ctx, docs)
	if err != nil {
		return err
	}
	stale, err := k.staleTerms(ctx, seqs)
	if err != nil {
		return err
	}

	pipe := k.client.TxPipeline()
	for seq, terms := range stale {
		for _, term := range terms {
			pipe.SRem(ctx, k.termKey(term), seq)
		}
	}
	for i, d := range docs {
		seq := seqs[i].seq
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		pipe.HSet(ctx, k.docKey(seq), "id", d.ID, "text", d.Text, "metadata", string(meta))
		if d.ID != "" {
			pipe.HSet(ctx, k.idsKey(), d.ID, seq)
		}
		for _, term := range textindex.Terms(d.Text) {
			pipe.SAdd(ctx, k.termKey(term), seq)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	return nil
}

type slot struct {
	seq      int64
	existing bool
}

// assign resolves the sequence number of every document, reusing the stored one
// for known IDs and allocating the rest in one increment.
func (k *Knowledge) assign(ctx context.Context, docs []domain.Document) ([]slot, error) {
	seqs := make([]slot, len(docs))
	var ids []string
	for _, d := range docs {
		if d.ID != "" {
			ids = append(ids, d.ID)
		}
	}
	known := make(map[string]int64)
	if len(ids) > 0 {
		vals, err := k.client.HMGet(ctx, k.idsKey(), ids...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to look up document ids: %w", err)
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if seq, err := strconv.ParseInt(s, 10, 64); err == nil {
				known[ids[i]] = seq
			}
		}
	}

	var fresh []int
	batch := make(map[string]int)
	for i, d := range docs {
		if seq, ok := known[d.ID]; ok {
			seqs[i] = slot{seq: seq, existing: true}
			continue
		}
		if j, ok := batch[d.ID]; ok && d.ID != "" {
			seqs[i] = slot{seq: -1 - int64(j)}
			continue
		}
		if d.ID != "" {
			batch[d.ID] = i
		}
		fresh = append(fresh, i)
	}

	if len(fresh) > 0 {
		last, err := k.client.IncrBy(ctx, k.seqKey(), int64(len(fresh))).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to allocate document ids: %w", err)
		}
		first := last - int64(len(fresh)) + 1
		for n, i := range fresh {
			seqs[i] = slot{seq: first + int64(n)}
		}
	}
	// Repeats within the batch share the sequence of their first occurrence.
	for i := range seqs {
		if seqs[i].seq < 0 {
			seqs[i] = slot{seq: seqs[-1-seqs[i].seq].seq, existing: true}
		}
	}
	return seqs, nil
}

// staleTerms returns the indexed terms of stored documents about to be replaced.
func (k *Knowledge) staleTerms(ctx context.Context, seqs []slot) (map[int64][]string, error) {
	pipe := k.client.Pipeline()
	texts := make(map[int64]*backend.StringCmd)
	for _, s := range seqs {
		if _, seen := texts[s.seq]; s.existing && !seen {
			texts[s.seq] = pipe.HGet(ctx, k.docKey(s.seq), "text")
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("failed to load replaced documents: %w", err)
	}
	out := make(map[int64][]string, len(texts))
	for seq, cmd := range texts {
		if text, err := cmd.Result(); err == nil {
			out[seq] = textindex.Terms(text)
		}
	}
	return out, nil
}

// Search returns up to topK passages sharing at least one term with query.
// Ties keep insertion order.
func (k *Knowledge) Search(ctx context.Context, query string, topK int) ([]string, error) {
	terms := textindex.Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	pipe := k.client.Pipeline()
	members := make([]*backend.StringSliceCmd, len(terms))
	for i, term := range terms {
		members[i] = pipe.SMembers(ctx, k.termKey(term))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("failed to search terms: %w", err)
	}

	scores := make(map[int64]int)
	for _, cmd := range members {
		for _, m := range cmd.Val() {
			seq, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			scores[seq]++
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ranked := make([]int64, 0, len(scores))
	for seq := range scores {
		ranked = append(ranked, seq)
	}
	slices.SortFunc(ranked, func(a, b int64) int {
		if scores[a] != scores[b] {
			return scores[b] - scores[a]
		}
		return int(a - b)
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	pipe = k.client.Pipeline()
	texts := make([]*backend.StringCmd, len(ranked))
	for i, seq := range ranked {
		texts[i] = pipe.HGet(ctx, k.docKey(seq), "text")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	out := make([]string, 0, len(texts))
	for _, cmd := range texts {
		if text, err := cmd.Result(); err == nil {
			out = append(out, text)
		}
	}
	return out, nil
}
