package ports

import (
	"context"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// MetricsSource evaluates an instant metrics query.
// Implementations apply their own timeout and return domain.ErrNoData for empty results.
type MetricsSource interface {
	Query(ctx context.Context, expr string) (domain.Series, error)
}

// KnowledgeStore is the remediation knowledge base.
// How passages are ranked is left to the implementation.
type KnowledgeStore interface {
	// Search returns up to topK passages relevant to query, best first.
	Search(ctx context.Context, query string, topK int) ([]string, error)

	// Add stores documents for future searches.
	Add(ctx context.Context, docs []domain.Document) error
}

// ResponseFormat asks the model for a JSON document instead of free text.
type ResponseFormat struct {
	Name   string
	Schema map[string]any
}

// CompletionRequest is one model turn.
type CompletionRequest struct {
	Messages []domain.Message
	// Tools the model may call. Empty disables tool calling.
	Tools []domain.Tool
	// Format requests structured output. Nil means free text.
	Format *ResponseFormat
}

// Model produces the next assistant message of a conversation.
type Model interface {
	Complete(ctx context.Context, req CompletionRequest) (domain.Message, error)
}

// Remediator applies corrective actions to workloads.
type Remediator interface {
	Apply(ctx context.Context, action domain.Action) error
}
