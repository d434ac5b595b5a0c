package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statestore"
	"github.com/jpalmerr/statestore/config"
	"github.com/jpalmerr/statestore/dashboard"
	"github.com/jpalmerr/statestore/internal/feed"
	"github.com/jpalmerr/statestore/internal/server"
	"github.com/jpalmerr/statestore/script"
)

const (
	// shutdownGrace is how long serve waits after a signal for the HTTP
	// server to drain before returning.
	shutdownGrace = 6 * time.Second
)

// serveCmd serves a seeded store over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a store over HTTP",
	Long: `Serve a store seeded from a script over HTTP.

The server will:
  - Seed a store with the script's state and data
  - Register the script's subscriptions and log each notification
  - Serve the store API, the SSE change stream and Prometheus metrics

Steps are not applied; POST to /api/state or /api/data to drive the store.
The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Endpoints:
  GET  /            inspector page
  GET  /api/state   current state
  POST /api/state   merge a JSON object into state
  GET  /api/data    current data
  POST /api/data    overlay a JSON object on data
  GET  /api/sse     Server-Sent Events change stream
  GET  /metrics     Prometheus metrics

Example:
  statestore serve -c script.yaml
  statestore serve -c script.yaml --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to script file (required)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides the script)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	port := cfg.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	st, err := script.NewStore(cfg, statestore.WithLogger(logger))
	if err != nil {
		return err
	}

	if _, err := script.Attach(st, cfg.Subscriptions, func(name string, newState, _ statestore.State[string]) {
		logger.Info("subscription notified",
			"subscription", name,
			"store_id", st.ID(),
			"fields", len(newState),
		)
	}); err != nil {
		return err
	}

	logger.Info("script loaded",
		"store_id", st.ID(),
		"subscriptions", len(cfg.Subscriptions),
		"ignored_steps", len(cfg.Steps),
	)

	srv, err := server.NewServer(st, feed.NewMemoryFeed(0), port, dashboard.Assets, cfg.Title, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		srv.Close()
		return fmt.Errorf("server error: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	select {
	case <-srv.Done():
		logger.Info("shutdown complete")
	case <-time.After(shutdownGrace):
		logger.Warn("shutdown timed out",
			"timeout", shutdownGrace.String(),
			"action", "forcing exit",
		)
	}
	return nil
}
