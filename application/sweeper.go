package application

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/logging"
)

// Sweep force-terminates episodes that have been active longer than
// their agent's sweep timeout, with success=false, so a crashed caller
// never locks an agent type out. Returns the number of episodes swept.
func (r *Registry) Sweep(ctx context.Context) int {
	swept := 0
	now := r.now()

	for agentType, s := range r.slots {
		s.mu.Lock()
		timeout := s.config.SweepTimeout
		if timeout > 0 && s.slot.Active() && s.active != nil &&
			now.Sub(s.active.StartTime) > timeout {
			id := s.active.ID
			err := r.endEpisodeLocked(ctx, s, false, 0, map[string]float64{"swept": 1})

			// A PersistenceWarning still means the slot was reset; only a
			// lifecycle failure leaves the episode in place.
			var warning *rl.PersistenceWarning
			if err == nil || errors.As(err, &warning) {
				logging.Warn().
					Add(logging.Agent(agentType)).
					Add(logging.EpisodeID(id)).
					Msg("stale episode force-terminated")
				swept++
			} else {
				logging.Warn().
					Add(logging.Agent(agentType)).
					Add(logging.EpisodeID(id)).
					Add(logging.ErrorField(err)).
					Msg("stale episode sweep incomplete")
			}
		}
		s.mu.Unlock()
	}

	return swept
}

// StartSweeper runs Sweep on the given interval until the context is
// cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
