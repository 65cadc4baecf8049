// Package model provides the trained-model domain: Q-table snapshots,
// version records, and their persistence interface.
package model

import (
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Row is one Q-table entry in a snapshot.
type Row struct {
	Key    rl.StateKey `json:"key"`
	Values []float64   `json:"values"`
	Visits []uint64    `json:"visits"`
}

// Snapshot is a serializable copy of one agent type's Q-table.
type Snapshot struct {
	AgentType rl.AgentType `json:"agent_type"`
	Rows      []Row        `json:"rows"`
	Epsilon   float64      `json:"epsilon"`
}

// Size returns the number of states in the snapshot.
func (s Snapshot) Size() int {
	return len(s.Rows)
}

// Version records one successful retraining pass. Version numbers are
// incremented by exactly one per pass and never decremented; persisted
// version records are append-only.
type Version struct {
	AgentType       rl.AgentType `json:"agent_type"`
	Number          int          `json:"number"`
	TrainedEpisodes int          `json:"trained_episodes"`
	AvgReward       float64      `json:"avg_reward"`
	SuccessRate     float64      `json:"success_rate"`
	CreatedAt       time.Time    `json:"created_at"`
}
