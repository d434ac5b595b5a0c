package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jpalmerr/statestore"
)

// simulatedService tracks status and next change time for a single service.
type simulatedService struct {
	statusIdx    int
	nextChangeAt time.Time
}

// RunSimulator drives st until ctx is cancelled. Each service cycles through
// ok, degraded and down every 5-15 seconds, and a heartbeat counter is bumped
// every tick.
func RunSimulator(ctx context.Context, st *statestore.Store[string], services []string) {
	statuses := []string{"ok", "degraded", "down"}
	states := make(map[string]*simulatedService, len(services))
	for _, svc := range services {
		states[svc] = &simulatedService{nextChangeAt: time.Now().Add(nextChange())}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	beats := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			beats++
			changes := map[string]any{}

			for svc, state := range states {
				if now.Before(state.nextChangeAt) {
					continue
				}
				oldStatus := statuses[state.statusIdx]
				state.statusIdx = (state.statusIdx + 1) % len(statuses)
				state.nextChangeAt = now.Add(nextChange())
				changes[svc] = map[string]any{"status": statuses[state.statusIdx]}
				slog.Debug("status change", "service", svc, "from", oldStatus, "to", statuses[state.statusIdx])
			}

			st.SetState(statestore.State[string]{"heartbeat": beats})
			if len(changes) > 0 {
				// nested merge keeps the other services intact
				st.SetState(statestore.State[string]{"services": changes})
			}
		}
	}
}

func nextChange() time.Duration {
	return time.Duration(5+rand.IntN(11)) * time.Second
}
