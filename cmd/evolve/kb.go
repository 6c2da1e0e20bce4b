package main

import (
	"fmt"

	"github.com/nvrdftd/evolve-ai-infra/internal/cli"
	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/memory"
	"github.com/spf13/cobra"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest <dir> [pattern...]",
	Short: "Load runbooks into the knowledge base",
	Long: `Splits the Markdown, text and HTML files under dir into passages and stores them
in the configured knowledge base. Patterns use doublestar syntax and default to
all .md, .txt and .html files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxChars, _ := cmd.Flags().GetInt("max-chars")

		cfg, logger, c, err := build(cmd.Context(), cmd,
			cli.WithModel(memory.NewModel()),
			cli.WithMetricsSource(memory.NewMetrics()),
		)
		if err != nil {
			return err
		}
		defer c.Close()
		if cfg.Redis.Addr == "" {
			logger.Warn("no redis.addr configured, passages are kept in memory and lost on exit")
		}

		n, err := cli.Ingest(cmd.Context(), c.Knowledge, args[0], maxChars, args[1:]...)
		if err != nil {
			return err
		}
		fmt.Printf("ingested %d passages from %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbIngestCmd)
	kbIngestCmd.Flags().Int("max-chars", 0, "Maximum passage size (0 uses the default)")
}
