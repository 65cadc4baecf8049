// Package experience provides the persistence interface for transition
// records, keyed by (episode ID, step index).
package experience

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Record is one persisted experience with its storage key.
type Record struct {
	EpisodeID  string        `json:"episode_id"`
	StepIndex  int           `json:"step_index"`
	Experience rl.Experience `json:"experience"`
}

// ListFilter specifies criteria for listing experience records.
type ListFilter struct {
	// AgentType filters by agent type (empty means all).
	AgentType rl.AgentType

	// EpisodeID filters by owning episode.
	EpisodeID string

	// DoneOnly restricts results to terminal transitions.
	DoneOnly bool

	// FromTime filters experiences recorded after this time.
	FromTime time.Time

	// MinPriority filters out low-priority experiences.
	MinPriority float64
}

// Store defines the interface for experience persistence.
type Store interface {
	// Append persists one experience record.
	Append(ctx context.Context, record Record) error

	// List returns up to limit records matching the filter, in insertion
	// order. limit <= 0 means no limit.
	List(ctx context.Context, filter ListFilter, limit int) ([]Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// Domain errors for experience persistence.
var (
	// ErrInvalidRecord indicates a record without an episode ID.
	ErrInvalidRecord = errors.New("invalid experience record")

	// ErrDuplicateStep indicates a record for an already stored
	// (episode ID, step index) pair.
	ErrDuplicateStep = errors.New("duplicate experience step")
)
