package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/nvrdftd/evolve-ai-infra/internal/presentation/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	flow "github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, domain.State) (domain.Update, error) { return domain.Update{}, nil }

func compile(t *testing.T) *flow.Graph {
	t.Helper()
	g, err := flow.New("demo").
		AddNode("fetch-data", noop).
		AddNode("check", noop).
		AddNode("report", noop).
		AddEdge("fetch-data", "check").
		AddConditionalEdge("check", func(domain.State) string { return "done" },
			map[string]string{"retry": "fetch-data", "done": "report", `say "hi"`: flow.END},
			flow.LoopLimit(3, "done")).
		AddTerminal("report").
		SetEntry("fetch-data").
		Compile()
	require.NoError(t, err)
	return g
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(compile(t), nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	for _, want := range []string{
		`__start__(("start"))`,
		`fetch_data["fetch-data"]`,
		`report(["report"])`,
		"__start__ --> fetch_data",
		"fetch_data --> check",
		`check -. "retry" .-> fetch_data`,
		`check -- "done" --> report`,
		`check -- "say 'hi'" --> __end__`,
		"report --> __end__",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(compile(t), &graph.GraphOverlay{
		VisitedNodes: []string{"fetch-data", "check", "fetch-data"},
		CurrentNode:  "check",
	})

	assert.Equal(t, 1, strings.Count(out, "class fetch_data visited;"))
	assert.Contains(t, out, "class check current;")
}
