package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jpalmerr/statestore"
	"github.com/jpalmerr/statestore/dashboard"
	"github.com/jpalmerr/statestore/internal/feed"
	"github.com/jpalmerr/statestore/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	services := []string{"users", "orders", "billing"}
	initial := map[string]any{}
	for _, svc := range services {
		initial[svc] = map[string]any{"status": "ok"}
	}

	st, err := statestore.New(statestore.State[string]{
		"services":  initial,
		"heartbeat": 0,
	}, statestore.Data{"started_by": "example"}, statestore.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	// only the services field, not every heartbeat
	_, _ = st.Subscribe(func(newState, _ statestore.State[string]) {
		logger.Info("services changed", "services", newState["services"])
	}, statestore.Key("services"))

	// predicate subscription: any field other than the heartbeat
	_, _ = st.Subscribe(func(_, _ statestore.State[string]) {
		logger.Info("non-heartbeat update")
	}, statestore.Match(func(key string) bool {
		return !strings.HasPrefix(key, "heart")
	}))

	srv, err := server.NewServer(st, feed.NewMemoryFeed(0), 8080, dashboard.Assets, "statestore demo", logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   statestore Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║   curl http://localhost:8080/api/state                ║")
	fmt.Println("  ║   curl -N http://localhost:8080/api/sse               ║")
	fmt.Println("  ║   curl http://localhost:8080/metrics                  ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   3 simulated services change status every 5-15s      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	RunSimulator(ctx, st, services)
	<-srv.Done()
}
