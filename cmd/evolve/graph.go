package main

import (
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/internal/cli"
	"github.com/nvrdftd/evolve-ai-infra/internal/presentation/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph visualization",
	Long:  `Compiles the configured graph and outputs a Mermaid diagram (graph TD) of its nodes and edges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Only the topology is needed, so no provider or Prometheus is contacted.
		_, _, c, err := build(cmd.Context(), cmd,
			cli.WithModel(memory.NewModel()),
			cli.WithMetricsSource(memory.NewMetrics()),
		)
		if err != nil {
			return err
		}
		defer c.Close()

		fmt.Print(graph.GenerateMermaid(c.Engine.Graph(), nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
