// Package episode provides the episode aggregate and its persistence
// interface. An episode is one bounded run of transitions for a single
// agent type, terminated by a done transition or an explicit end.
package episode

import (
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Status represents the lifecycle state of an episode.
type Status string

const (
	StatusActive    Status = "active"    // Accumulating transitions
	StatusCompleted Status = "completed" // Ended with success=true
	StatusFailed    Status = "failed"    // Ended with success=false
)

// IsTerminal returns true for completed or failed episodes.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Episode ties a sequence of experiences to one agent-type run.
// It is the aggregate root of this package: mutated only by the owning
// episode manager, immutable once finalized.
type Episode struct {
	ID               string             `json:"id"`
	AgentType        rl.AgentType       `json:"agent_type"`
	Status           Status             `json:"status"`
	CumulativeReward float64            `json:"cumulative_reward"`
	StepCount        int                `json:"step_count"`
	Success          bool               `json:"success"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          time.Time          `json:"end_time,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
}

// New creates an active episode for an agent type.
func New(id string, agentType rl.AgentType) *Episode {
	return &Episode{
		ID:        id,
		AgentType: agentType,
		Status:    StatusActive,
		StartTime: time.Now().UTC(),
		Metrics:   make(map[string]float64),
	}
}

// Record accumulates one step's reward.
func (e *Episode) Record(reward float64) {
	e.CumulativeReward += reward
	e.StepCount++
}

// Finalize transitions the episode to its terminal status.
// If totalReward is non-zero it overrides the accumulated sum, matching
// simulators that compute the episode reward themselves. Zero is the
// keep-accumulated sentinel, so an exact total of 0 cannot be forced;
// callers needing that must shape the per-step rewards instead.
func (e *Episode) Finalize(success bool, totalReward float64, metrics map[string]float64) {
	e.Success = success
	if success {
		e.Status = StatusCompleted
	} else {
		e.Status = StatusFailed
	}
	if totalReward != 0 {
		e.CumulativeReward = totalReward
	}
	for k, v := range metrics {
		e.Metrics[k] = v
	}
	e.EndTime = time.Now().UTC()
}

// IsTerminal returns true once the episode has been finalized.
func (e *Episode) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// Duration returns how long the episode has been (or was) running.
func (e *Episode) Duration() time.Duration {
	if e.EndTime.IsZero() {
		return time.Since(e.StartTime)
	}
	return e.EndTime.Sub(e.StartTime)
}
