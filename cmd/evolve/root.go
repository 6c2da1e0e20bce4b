package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nvrdftd/evolve-ai-infra/internal/cli"
	"github.com/nvrdftd/evolve-ai-infra/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Evolve diagnoses and remediates infrastructure incidents",
	Long: `Evolve runs an LLM driven workflow graph that collects metrics, consults a
knowledge base, applies a remedy and verifies the outcome.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("env", ".env", "Dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
}

// loadConfig resolves the configuration for cmd: dotenv, file, environment, then flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// build loads the configuration and assembles the engine.
func build(ctx context.Context, cmd *cobra.Command, opts ...cli.BuildOption) (*config.Config, *slog.Logger, *cli.Components, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := cli.Build(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, c, nil
}
