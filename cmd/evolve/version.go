package main

import (
	"fmt"
	"strings"

	"github.com/nvrdftd/evolve-ai-infra"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of evolve",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evolve version %s\n", strings.TrimSpace(evolve.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
