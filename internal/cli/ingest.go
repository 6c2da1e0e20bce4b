package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/nvrdftd/evolve-ai-infra/pkg/knowledge"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// Ingest loads the files under dir matching patterns into the knowledge store
// and returns the number of passages added.
func Ingest(ctx context.Context, store ports.KnowledgeStore, dir string, maxChars int, patterns ...string) (int, error) {
	if len(patterns) == 0 {
		patterns = []string{"**/*.md", "**/*.txt", "**/*.html"}
	}
	docs, err := knowledge.NewLoader(os.DirFS(dir), maxChars).Load(patterns...)
	if err != nil {
		return 0, err
	}
	if err := store.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to store passages: %w", err)
	}
	return len(docs), nil
}
