package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvrdftd/evolve-ai-infra/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP Server so that other agents can invoke the workflow as a tool.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		_, logger, c, err := build(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		srv := mcp.NewServer(c.Engine, mcp.WithRunStore(c.Runs), mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("starting MCP server", "transport", "stdio")
			if err := srv.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server execution failed: %w", err)
			}
		case "sse":
			logger.Info("starting MCP server", "transport", "sse", "port", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("MCP server execution failed: %w", err)
			}
			logger.Info("MCP server stopped gracefully")
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
