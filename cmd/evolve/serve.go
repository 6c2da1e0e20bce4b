package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/nvrdftd/evolve-ai-infra/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes the agent over HTTP: invocations stream their events as Server-Sent Events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, c, err := build(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		handler, err := httpAdapter.NewHandler(c.Engine,
			httpAdapter.WithRunStore(c.Runs),
			httpAdapter.WithMetricsHandler(c.Metrics.Handler()),
			httpAdapter.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
			httpAdapter.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", srv.Addr, "graph", c.Engine.Graph().Name())
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", 5*time.Second, "error", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 3000, "Port to listen on (overrides server.port)")
}
