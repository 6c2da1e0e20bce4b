package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nvrdftd/evolve-ai-infra"
	"github.com/nvrdftd/evolve-ai-infra/internal/cli"
	"github.com/nvrdftd/evolve-ai-infra/internal/presentation/graph"
	"github.com/nvrdftd/evolve-ai-infra/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Run the workflow once for a message",
	Long: `Invokes the configured graph with a single human message and prints the run
as it progresses. The message is read from stdin when no argument is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		if message == "" {
			b, err := readStdin()
			if err != nil {
				return err
			}
			message = b
		}

		jsonMode, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")
		trace, _ := cmd.Flags().GetBool("trace")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		_, _, c, err := build(sc, cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if !jsonMode && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, evolve.Version)
		}

		res, err := cli.Execute(sc, c, cli.RunOptions{Message: message, JSON: jsonMode, Verbose: verbose})
		if trace && !jsonMode {
			fmt.Println()
			fmt.Print(graph.GenerateMermaid(c.Engine.Graph(), &graph.GraphOverlay{
				VisitedNodes: res.Visited,
				CurrentNode:  last(res.Visited),
			}))
		}
		if sig := sc.Signal(); sig != nil {
			return fmt.Errorf("interrupted by %s", sig)
		}
		return err
	},
}

func readStdin() (string, error) {
	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return "", errors.New("a message is required")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(b), nil
}

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Print events as NDJSON")
	runCmd.Flags().BoolP("verbose", "v", false, "Also print system prompts and value changes")
	runCmd.Flags().Bool("trace", false, "Print the graph with the visited path after the run")
}
